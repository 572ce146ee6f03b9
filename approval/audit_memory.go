package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// MemoryAuditService is an in-memory ApprovalAuditService for tests and
// embedded deployments. Production federations back this with their audit
// log; the tally semantics here are the reference behavior.
type MemoryAuditService struct {
	mutex    sync.RWMutex
	requests map[string]*interfaces.ApprovalRequest
}

// NewMemoryAuditService creates an empty audit service.
func NewMemoryAuditService() *MemoryAuditService {
	return &MemoryAuditService{
		requests: make(map[string]*interfaces.ApprovalRequest),
	}
}

func (m *MemoryAuditService) OpenRequest(ctx context.Context, request *interfaces.ApprovalRequest) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.requests[request.ID]; exists {
		return fmt.Errorf("approval request %s already exists", request.ID)
	}

	dup := *request
	dup.Approvals = append([]interfaces.ParticipantID(nil), request.Approvals...)
	dup.Participants = append([]interfaces.ParticipantID(nil), request.Participants...)
	dup.MessageTemplate = append([]byte(nil), request.MessageTemplate...)
	m.requests[request.ID] = &dup
	return nil
}

func (m *MemoryAuditService) GetRequest(ctx context.Context, id string) (*interfaces.ApprovalRequest, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	request, exists := m.requests[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrApprovalNotFound, id)
	}

	dup := *request
	dup.Approvals = append([]interfaces.ParticipantID(nil), request.Approvals...)
	dup.Participants = append([]interfaces.ParticipantID(nil), request.Participants...)
	return &dup, nil
}

// RecordApproval appends a named approval. The same approver counts once no
// matter how many times they approve.
func (m *MemoryAuditService) RecordApproval(ctx context.Context, id string, approver interfaces.ParticipantID) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	request, exists := m.requests[id]
	if !exists {
		return 0, fmt.Errorf("%w: %s", interfaces.ErrApprovalNotFound, id)
	}

	for _, existing := range request.Approvals {
		if existing == approver {
			return len(request.Approvals), nil
		}
	}
	request.Approvals = append(request.Approvals, approver)
	return len(request.Approvals), nil
}

func (m *MemoryAuditService) RecordRejection(ctx context.Context, id string, rejector interfaces.ParticipantID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	request, exists := m.requests[id]
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrApprovalNotFound, id)
	}
	request.Rejected = true
	return nil
}

// CloseRequest removes the request and reports whether this caller did the
// removal. A request already closed by a racing finisher yields false.
func (m *MemoryAuditService) CloseRequest(ctx context.Context, id string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.requests[id]; !exists {
		return false, nil
	}
	delete(m.requests, id)
	return true, nil
}
