package interfaces

import "context"

// PermissionDecision is the outcome of a permission check for creating a
// signing ceremony.
type PermissionDecision struct {
	// Allowed means the requester may create the session immediately.
	Allowed bool
	// RequiresApproval means a pending-approval record should be opened
	// instead; ApprovalThreshold names how many distinct approvals it needs.
	RequiresApproval  bool
	ApprovalThreshold int
	// Reason is a human-readable explanation, surfaced on denial.
	Reason string
}

// PermissionService decides whether a federation member may create a signing
// ceremony for a given event type, and whether a role may approve one. Lookup
// failures must be treated as denial by callers (fail closed).
type PermissionService interface {
	CheckSigningPermission(ctx context.Context, groupID GroupID, requester ParticipantID, eventType string) (PermissionDecision, error)

	// CanApprove reports whether the given role is authorized to approve or
	// reject ceremonies of the given event type within the federation.
	CanApprove(ctx context.Context, groupID GroupID, role string, eventType string) (bool, error)
}

// ApprovalRequest is a pending-approval record opened when session creation
// requires sign-off from federation roles. It carries the full session spec
// so the ceremony can be created as soon as the approval threshold is met,
// even by a different coordinator process than the one that opened it.
type ApprovalRequest struct {
	ID                string
	GroupID           GroupID
	Requester         ParticipantID
	EventType         string
	ApprovalThreshold int
	Approvals         []ParticipantID
	Rejected          bool
	CreatedAt         int64

	// Pending session spec.
	MessageHash     MessageHash
	MessageTemplate []byte
	Participants    []ParticipantID
	Threshold       int
	TTLMillis       int64
}

// ApprovalAuditService records and tallies approvals for pending requests.
type ApprovalAuditService interface {
	OpenRequest(ctx context.Context, request *ApprovalRequest) error
	GetRequest(ctx context.Context, id string) (*ApprovalRequest, error)

	// RecordApproval appends a named approval and returns the updated tally.
	// Duplicate approvals by the same approver do not double-count.
	RecordApproval(ctx context.Context, id string, approver ParticipantID) (int, error)

	// RecordRejection marks the request rejected.
	RecordRejection(ctx context.Context, id string, rejector ParticipantID) error

	// CloseRequest removes a decided request from the pending set. It reports
	// whether this caller performed the removal, so of several racing
	// finishers exactly one claims the request.
	CloseRequest(ctx context.Context, id string) (bool, error)
}

// FederationRegistry resolves federation records. The group public key used
// for signature verification always comes from here, never from a caller
// parameter, to rule out key-substitution attacks.
type FederationRegistry interface {
	// GroupPublicKey returns the federation's 33-byte compressed public key.
	GroupPublicKey(ctx context.Context, groupID GroupID) ([]byte, error)
}

// PublicationAdapter transmits a completed signature together with the
// original message template, returning an opaque publication identifier.
// Typically backed by a Nostr relay pool.
type PublicationAdapter interface {
	Publish(ctx context.Context, sessionID SessionID, signature FinalSignature, messageTemplate []byte) (string, error)
}

// CompletionNotifier delivers a completion notice to all participants. The
// coordinator emits the notice; delivery is external.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, notice CompletionNotice) error
}
