package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OV1-Kenobi/satnam-frost/coordinator"
	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// Gate decides whether a signing session may be created and, when approvals
// are required, collects them before creating it. Every authorization lookup
// failure is treated as denial: the gate fails closed.
type Gate struct {
	permissions interfaces.PermissionService
	audit       interfaces.ApprovalAuditService
	coordinator *coordinator.Coordinator
	log         *slog.Logger
	now         func() time.Time
}

// NewGate creates an approval gate in front of the given coordinator.
func NewGate(permissions interfaces.PermissionService, audit interfaces.ApprovalAuditService, coord *coordinator.Coordinator, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		permissions: permissions,
		audit:       audit,
		coordinator: coord,
		log:         log,
		now:         time.Now,
	}
}

// WithClock returns a copy of the gate using the given time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	dup := *g
	dup.now = now
	return &dup
}

// Decision is the outcome of a gate operation. Exactly one of Session or
// RequestID is meaningful: Session is set once a ceremony exists, RequestID
// while approvals are still being collected.
type Decision struct {
	Session   *interfaces.Session
	RequestID string
	Approvals int
	Required  int
}

// RequestSession asks permission to create a signing ceremony for the given
// event type and either creates it immediately, opens a pending approval
// request, or denies.
func (g *Gate) RequestSession(ctx context.Context, requester interfaces.ParticipantID, eventType string, params coordinator.CreateSessionParams) (*Decision, error) {
	decision, err := g.permissions.CheckSigningPermission(ctx, params.GroupID, requester, eventType)
	if err != nil {
		// Fail closed: an unanswered permission check is a denial.
		g.log.Warn("Permission lookup failed, denying session creation",
			"groupID", string(params.GroupID), "requester", string(requester), "err", err)
		return nil, fmt.Errorf("%w: permission lookup failed", interfaces.ErrPermissionDenied)
	}

	switch {
	case decision.Allowed:
		session, err := g.coordinator.CreateSession(ctx, params)
		if err != nil {
			return nil, err
		}
		return &Decision{Session: session}, nil

	case decision.RequiresApproval:
		if decision.ApprovalThreshold < 1 {
			return nil, fmt.Errorf("%w: approval required but threshold is %d",
				interfaces.ErrPermissionDenied, decision.ApprovalThreshold)
		}

		request := &interfaces.ApprovalRequest{
			ID:                "aprq_" + uuid.NewString(),
			GroupID:           params.GroupID,
			Requester:         requester,
			EventType:         eventType,
			ApprovalThreshold: decision.ApprovalThreshold,
			CreatedAt:         g.now().UnixMilli(),
			MessageHash:       params.MessageHash,
			MessageTemplate:   append([]byte(nil), params.MessageTemplate...),
			Participants:      append([]interfaces.ParticipantID(nil), params.Participants...),
			Threshold:         params.Threshold,
			TTLMillis:         params.TTL.Milliseconds(),
		}
		if err := g.audit.OpenRequest(ctx, request); err != nil {
			return nil, fmt.Errorf("failed to open approval request: %w", err)
		}

		g.log.Info("Approval request opened",
			"requestID", request.ID,
			"groupID", string(params.GroupID),
			"eventType", eventType,
			"required", decision.ApprovalThreshold)
		return &Decision{RequestID: request.ID, Required: decision.ApprovalThreshold}, nil

	default:
		reason := decision.Reason
		if reason == "" {
			reason = "not authorized for event type " + eventType
		}
		return nil, fmt.Errorf("%w: %s", interfaces.ErrPermissionDenied, reason)
	}
}

// Approve records a named approval from an eligible role. When the approval
// threshold is met the pending session is created and returned; before that,
// the decision carries the current tally and ErrApprovalPending.
func (g *Gate) Approve(ctx context.Context, requestID string, approver interfaces.ParticipantID, role string) (*Decision, error) {
	request, err := g.authorizeDecision(ctx, requestID, approver, role)
	if err != nil {
		return nil, err
	}

	tally, err := g.audit.RecordApproval(ctx, requestID, approver)
	if err != nil {
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	g.log.Info("Approval recorded",
		"requestID", requestID,
		"approver", string(approver),
		"tally", tally,
		"required", request.ApprovalThreshold)

	if tally < request.ApprovalThreshold {
		return &Decision{RequestID: requestID, Approvals: tally, Required: request.ApprovalThreshold},
			fmt.Errorf("%w: %d of %d", interfaces.ErrApprovalPending, tally, request.ApprovalThreshold)
	}

	// Claim the request before creating the ceremony: of several final
	// approvers racing past the tally check, only the one that closes the
	// request creates a session.
	claimed, err := g.audit.CloseRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to close approval request: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: request %s already decided", interfaces.ErrApprovalNotFound, requestID)
	}

	session, err := g.coordinator.CreateSession(ctx, coordinator.CreateSessionParams{
		GroupID:         request.GroupID,
		MessageHash:     request.MessageHash,
		MessageTemplate: request.MessageTemplate,
		Participants:    request.Participants,
		Threshold:       request.Threshold,
		TTL:             time.Duration(request.TTLMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	return &Decision{Session: session, RequestID: requestID, Approvals: tally, Required: request.ApprovalThreshold}, nil
}

// Reject marks the pending request rejected and closes it. Rejection is
// restricted to the same roles as approval.
func (g *Gate) Reject(ctx context.Context, requestID string, rejector interfaces.ParticipantID, role string) error {
	if _, err := g.authorizeDecision(ctx, requestID, rejector, role); err != nil {
		return err
	}

	if err := g.audit.RecordRejection(ctx, requestID, rejector); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	if _, err := g.audit.CloseRequest(ctx, requestID); err != nil {
		g.log.Error("Failed to close rejected approval request", "requestID", requestID, "err", err)
	}

	g.log.Info("Approval request rejected", "requestID", requestID, "rejector", string(rejector))
	return nil
}

// authorizeDecision loads the pending request and checks the decider's role
// against the permission service, failing closed on any lookup error.
func (g *Gate) authorizeDecision(ctx context.Context, requestID string, decider interfaces.ParticipantID, role string) (*interfaces.ApprovalRequest, error) {
	request, err := g.audit.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Rejected {
		return nil, fmt.Errorf("%w: request %s was rejected", interfaces.ErrPermissionDenied, requestID)
	}

	eligible, err := g.permissions.CanApprove(ctx, request.GroupID, role, request.EventType)
	if err != nil {
		g.log.Warn("Approver authorization lookup failed, denying",
			"requestID", requestID, "decider", string(decider), "err", err)
		return nil, fmt.Errorf("%w: authorization lookup failed", interfaces.ErrPermissionDenied)
	}
	if !eligible {
		return nil, fmt.Errorf("%w: role %s may not decide %s ceremonies",
			interfaces.ErrPermissionDenied, role, request.EventType)
	}
	return request, nil
}
