package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OV1-Kenobi/satnam-frost/coordinator"
	"github.com/OV1-Kenobi/satnam-frost/interfaces"
	"github.com/OV1-Kenobi/satnam-frost/storage"
)

type stubPermissions struct {
	decision interfaces.PermissionDecision
	checkErr error

	approverRoles map[string]bool
	approveErr    error
}

func (s *stubPermissions) CheckSigningPermission(ctx context.Context, groupID interfaces.GroupID, requester interfaces.ParticipantID, eventType string) (interfaces.PermissionDecision, error) {
	if s.checkErr != nil {
		return interfaces.PermissionDecision{}, s.checkErr
	}
	return s.decision, nil
}

func (s *stubPermissions) CanApprove(ctx context.Context, groupID interfaces.GroupID, role string, eventType string) (bool, error) {
	if s.approveErr != nil {
		return false, s.approveErr
	}
	return s.approverRoles[role], nil
}

type stubGateRegistry struct{}

func (stubGateRegistry) GroupPublicKey(ctx context.Context, groupID interfaces.GroupID) ([]byte, error) {
	return nil, errors.New("not registered")
}

func newGate(t *testing.T, permissions *stubPermissions) *Gate {
	t.Helper()
	coord := coordinator.New(storage.NewMemoryRepository(), stubGateRegistry{}, nil)
	return NewGate(permissions, NewMemoryAuditService(), coord, nil)
}

func gateParams() coordinator.CreateSessionParams {
	return coordinator.CreateSessionParams{
		GroupID:      "federation-1",
		MessageHash:  interfaces.HashMessage([]byte("family payment event")),
		Participants: []interfaces.ParticipantID{"alice", "bob", "carol"},
		Threshold:    2,
	}
}

func TestRequestSessionAllowed(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, &stubPermissions{
		decision: interfaces.PermissionDecision{Allowed: true},
	})

	decision, err := gate.RequestSession(ctx, "alice", "payment", gateParams())
	require.NoError(t, err)
	require.NotNil(t, decision.Session)
	assert.Empty(t, decision.RequestID)
	assert.Equal(t, interfaces.StatusPending, decision.Session.Status)
}

func TestRequestSessionDenied(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, &stubPermissions{
		decision: interfaces.PermissionDecision{Reason: "offspring may not initiate payments"},
	})

	_, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "offspring may not initiate payments")
}

func TestRequestSessionFailsClosed(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, &stubPermissions{
		checkErr: errors.New("permission backend unreachable"),
	})

	_, err := gate.RequestSession(ctx, "alice", "payment", gateParams())
	assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)
}

func TestApprovalFlow(t *testing.T) {
	ctx := context.Background()
	permissions := &stubPermissions{
		decision:      interfaces.PermissionDecision{RequiresApproval: true, ApprovalThreshold: 2},
		approverRoles: map[string]bool{"guardian": true},
	}
	gate := newGate(t, permissions)

	decision, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	require.NoError(t, err)
	assert.Nil(t, decision.Session)
	require.NotEmpty(t, decision.RequestID)
	assert.Equal(t, 2, decision.Required)
	requestID := decision.RequestID

	// First approval is below threshold.
	decision, err = gate.Approve(ctx, requestID, "alice", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrApprovalPending)
	require.NotNil(t, decision)
	assert.Equal(t, 1, decision.Approvals)
	assert.Nil(t, decision.Session)

	// The same guardian approving again does not advance the tally.
	decision, err = gate.Approve(ctx, requestID, "alice", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrApprovalPending)
	assert.Equal(t, 1, decision.Approvals)

	// A second guardian meets the threshold and the ceremony is created.
	decision, err = gate.Approve(ctx, requestID, "bob", "guardian")
	require.NoError(t, err)
	require.NotNil(t, decision.Session)
	assert.Equal(t, 2, decision.Approvals)
	assert.Equal(t, interfaces.GroupID("federation-1"), decision.Session.GroupID)

	// The decided request is closed.
	_, err = gate.Approve(ctx, requestID, "carol", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrApprovalNotFound)
}

func TestApproveRejectsIneligibleRole(t *testing.T) {
	ctx := context.Background()
	permissions := &stubPermissions{
		decision:      interfaces.PermissionDecision{RequiresApproval: true, ApprovalThreshold: 1},
		approverRoles: map[string]bool{"guardian": true},
	}
	gate := newGate(t, permissions)

	decision, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	require.NoError(t, err)

	_, err = gate.Approve(ctx, decision.RequestID, "dave", "offspring")
	assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)
}

func TestApproveFailsClosedOnLookupError(t *testing.T) {
	ctx := context.Background()
	permissions := &stubPermissions{
		decision:      interfaces.PermissionDecision{RequiresApproval: true, ApprovalThreshold: 1},
		approverRoles: map[string]bool{"guardian": true},
	}
	gate := newGate(t, permissions)

	decision, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	require.NoError(t, err)

	permissions.approveErr = errors.New("role backend unreachable")
	_, err = gate.Approve(ctx, decision.RequestID, "alice", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)
}

func TestRejectClosesRequest(t *testing.T) {
	ctx := context.Background()
	permissions := &stubPermissions{
		decision:      interfaces.PermissionDecision{RequiresApproval: true, ApprovalThreshold: 2},
		approverRoles: map[string]bool{"guardian": true},
	}
	gate := newGate(t, permissions)

	decision, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	require.NoError(t, err)

	require.NoError(t, gate.Reject(ctx, decision.RequestID, "alice", "guardian"))

	_, err = gate.Approve(ctx, decision.RequestID, "bob", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrApprovalNotFound)
}

func TestApproveUnknownRequest(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, &stubPermissions{approverRoles: map[string]bool{"guardian": true}})

	_, err := gate.Approve(ctx, "aprq_missing", "alice", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrApprovalNotFound)
}

func TestRequestSessionInvalidApprovalThreshold(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, &stubPermissions{
		decision: interfaces.PermissionDecision{RequiresApproval: true},
	})

	_, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)
}

// decidedOnceAudit lets every finisher observe the tally as met while the
// close succeeds for exactly one of them, the interleaving two racing final
// approvers produce.
type decidedOnceAudit struct {
	request *interfaces.ApprovalRequest
	claimed bool
}

func (a *decidedOnceAudit) OpenRequest(ctx context.Context, request *interfaces.ApprovalRequest) error {
	dup := *request
	a.request = &dup
	return nil
}

func (a *decidedOnceAudit) GetRequest(ctx context.Context, id string) (*interfaces.ApprovalRequest, error) {
	dup := *a.request
	return &dup, nil
}

func (a *decidedOnceAudit) RecordApproval(ctx context.Context, id string, approver interfaces.ParticipantID) (int, error) {
	return a.request.ApprovalThreshold, nil
}

func (a *decidedOnceAudit) RecordRejection(ctx context.Context, id string, rejector interfaces.ParticipantID) error {
	return nil
}

func (a *decidedOnceAudit) CloseRequest(ctx context.Context, id string) (bool, error) {
	if a.claimed {
		return false, nil
	}
	a.claimed = true
	return true, nil
}

func TestApproveRacingFinishersCreateOneSession(t *testing.T) {
	ctx := context.Background()
	permissions := &stubPermissions{
		decision:      interfaces.PermissionDecision{RequiresApproval: true, ApprovalThreshold: 2},
		approverRoles: map[string]bool{"guardian": true},
	}
	audit := &decidedOnceAudit{}
	coord := coordinator.New(storage.NewMemoryRepository(), stubGateRegistry{}, nil)
	gate := NewGate(permissions, audit, coord, nil)

	decision, err := gate.RequestSession(ctx, "dave", "payment", gateParams())
	require.NoError(t, err)

	// Both finishers see the threshold met; only the claimer creates.
	first, err := gate.Approve(ctx, decision.RequestID, "alice", "guardian")
	require.NoError(t, err)
	require.NotNil(t, first.Session)

	second, err := gate.Approve(ctx, decision.RequestID, "bob", "guardian")
	assert.ErrorIs(t, err, interfaces.ErrApprovalNotFound)
	assert.Nil(t, second)
}
