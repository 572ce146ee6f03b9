package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// MemoryRepository is an in-memory SessionRepository for tests and embedded
// single-process deployments. It mirrors the PostgreSQL repository's
// semantics, including the ledger-wide uniqueness of nonce commitment values
// and optimistic-lock session writes.
type MemoryRepository struct {
	mutex    sync.RWMutex
	sessions map[interfaces.SessionID]*interfaces.Session

	// ledger rows keyed by session then participant; commitmentIndex tracks
	// every commitment value ever inserted, across all sessions.
	ledger          map[interfaces.SessionID]map[interfaces.ParticipantID]*interfaces.NonceRecord
	commitmentIndex map[string]interfaces.SessionID
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:        make(map[interfaces.SessionID]*interfaces.Session),
		ledger:          make(map[interfaces.SessionID]map[interfaces.ParticipantID]*interfaces.NonceRecord),
		commitmentIndex: make(map[string]interfaces.SessionID),
	}
}

// CreateSession persists a new session.
func (m *MemoryRepository) CreateSession(ctx context.Context, session *interfaces.Session) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// GetSession returns a copy of the session or ErrSessionNotFound.
func (m *MemoryRepository) GetSession(ctx context.Context, id interfaces.SessionID) (*interfaces.Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, id)
	}
	return session.Clone(), nil
}

// UpdateSessionOCC writes the session conditioned on the stored UpdatedAt
// still matching prevUpdatedAt.
func (m *MemoryRepository) UpdateSessionOCC(ctx context.Context, session *interfaces.Session, prevUpdatedAt int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored, exists := m.sessions[session.ID]
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, session.ID)
	}
	if stored.UpdatedAt != prevUpdatedAt {
		return fmt.Errorf("%w: session %s", interfaces.ErrConcurrentUpdate, session.ID)
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// TransitionStatus conditionally moves the session between exactly the given
// statuses. Only one of several concurrent callers can observe the from
// status, so only one succeeds.
func (m *MemoryRepository) TransitionStatus(ctx context.Context, id interfaces.SessionID, from, to interfaces.SessionStatus, nowMillis int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored, exists := m.sessions[id]
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, id)
	}
	if stored.Status != from {
		if stored.Status == to && to == interfaces.StatusAggregating {
			return fmt.Errorf("%w: session %s", interfaces.ErrAlreadyAggregating, id)
		}
		return fmt.Errorf("%w: session %s is %s, expected %s", interfaces.ErrWrongState, id, stored.Status, from)
	}
	stored.Status = to
	stored.UpdatedAt = bumpToken(stored.UpdatedAt, nowMillis)
	return nil
}

// bumpToken advances the optimistic-lock token past its previous value even
// when the write lands in the same millisecond as the last one. A transition
// that left the token unchanged would let a stale conditional write still
// match and revert the status.
func bumpToken(prev, nowMillis int64) int64 {
	if nowMillis > prev {
		return nowMillis
	}
	return prev + 1
}

// InsertNonceRecord appends a ledger row, rejecting any commitment value that
// has ever been inserted before, in this session or any other.
func (m *MemoryRepository) InsertNonceRecord(ctx context.Context, record *interfaces.NonceRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := hex.EncodeToString(record.Commitment)
	if prior, seen := m.commitmentIndex[key]; seen {
		return fmt.Errorf("%w: commitment first seen in session %s", interfaces.ErrNonceReuse, prior)
	}

	rows := m.ledger[record.SessionID]
	if rows == nil {
		rows = make(map[interfaces.ParticipantID]*interfaces.NonceRecord)
		m.ledger[record.SessionID] = rows
	}
	if _, exists := rows[record.ParticipantID]; exists {
		return fmt.Errorf("%w: participant %s in session %s", interfaces.ErrDuplicateCommitment, record.ParticipantID, record.SessionID)
	}

	dup := *record
	dup.Commitment = append([]byte(nil), record.Commitment...)
	rows[record.ParticipantID] = &dup
	m.commitmentIndex[key] = record.SessionID
	return nil
}

// MarkNonceUsed consumes the participant's unused commitment.
func (m *MemoryRepository) MarkNonceUsed(ctx context.Context, sessionID interfaces.SessionID, participantID interfaces.ParticipantID, usedAtMillis int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.ledger[sessionID][participantID]
	if !exists || record.Used {
		return fmt.Errorf("%w: participant %s in session %s", interfaces.ErrCommitmentMissing, participantID, sessionID)
	}
	record.Used = true
	record.UsedAt = usedAtMillis
	return nil
}

// GetNonceRecord returns a copy of the participant's ledger row.
func (m *MemoryRepository) GetNonceRecord(ctx context.Context, sessionID interfaces.SessionID, participantID interfaces.ParticipantID) (*interfaces.NonceRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	record, exists := m.ledger[sessionID][participantID]
	if !exists {
		return nil, fmt.Errorf("%w: participant %s in session %s", interfaces.ErrCommitmentMissing, participantID, sessionID)
	}
	dup := *record
	dup.Commitment = append([]byte(nil), record.Commitment...)
	return &dup, nil
}

// ListNonceRecords returns copies of all ledger rows for a session.
func (m *MemoryRepository) ListNonceRecords(ctx context.Context, sessionID interfaces.SessionID) ([]*interfaces.NonceRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rows := m.ledger[sessionID]
	records := make([]*interfaces.NonceRecord, 0, len(rows))
	for _, record := range rows {
		dup := *record
		dup.Commitment = append([]byte(nil), record.Commitment...)
		records = append(records, &dup)
	}
	return records, nil
}

// ExpireStale flips every non-terminal session past its deadline to expired.
func (m *MemoryRepository) ExpireStale(ctx context.Context, nowMillis int64) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	expired := 0
	for _, session := range m.sessions {
		if session.Status.IsTerminal() || session.ExpiresAt >= nowMillis {
			continue
		}
		session.Status = interfaces.StatusExpired
		session.UpdatedAt = bumpToken(session.UpdatedAt, nowMillis)
		expired++
	}
	return expired, nil
}

// DeleteTerminalBefore removes terminal sessions older than the cutoff along
// with their ledger rows.
func (m *MemoryRepository) DeleteTerminalBefore(ctx context.Context, cutoffMillis int64) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	deleted := 0
	for id, session := range m.sessions {
		if !session.Status.IsTerminal() || session.UpdatedAt >= cutoffMillis {
			continue
		}
		for _, record := range m.ledger[id] {
			delete(m.commitmentIndex, hex.EncodeToString(record.Commitment))
		}
		delete(m.ledger, id)
		delete(m.sessions, id)
		deleted++
	}
	return deleted, nil
}
