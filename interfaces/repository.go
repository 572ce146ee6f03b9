package interfaces

import "context"

// SessionRepository is the durable store behind the coordinator. All session
// mutations are optimistic: writes are conditioned on the UpdatedAt token
// captured at read time, and a zero-row write surfaces ErrConcurrentUpdate
// instead of silently dropping another participant's contribution.
//
// Implementations must make each method all-or-nothing: a failed call leaves
// both the session row and the nonce ledger untouched.
type SessionRepository interface {
	// CreateSession persists a new session. The id must not already exist.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// UpdateSessionOCC writes the full session state conditioned on the stored
	// UpdatedAt still matching prevUpdatedAt. The session's own UpdatedAt must
	// already carry the new token. Returns ErrConcurrentUpdate on a stale view.
	UpdateSessionOCC(ctx context.Context, session *Session, prevUpdatedAt int64) error

	// TransitionStatus conditionally moves a session from exactly the given
	// status to a new one, stamping UpdatedAt with nowMillis. Exactly one of
	// multiple concurrent callers succeeds; losers get ErrAlreadyAggregating
	// when the session already left the from status for the to status, or
	// ErrWrongState otherwise.
	TransitionStatus(ctx context.Context, id SessionID, from, to SessionStatus, nowMillis int64) error

	// InsertNonceRecord appends a ledger row. Returns ErrNonceReuse if the
	// commitment value already exists anywhere in the ledger, including rows
	// belonging to other sessions. This constraint is the primary nonce-reuse
	// defense and must be enforced by the storage layer itself.
	InsertNonceRecord(ctx context.Context, record *NonceRecord) error

	// MarkNonceUsed flips the participant's ledger row for the session to
	// used, conditioned on it currently being unused. Returns
	// ErrCommitmentMissing when there is no unused row to consume.
	MarkNonceUsed(ctx context.Context, sessionID SessionID, participantID ParticipantID, usedAtMillis int64) error

	// GetNonceRecord returns the ledger row for a participant in a session, or
	// ErrCommitmentMissing if none exists.
	GetNonceRecord(ctx context.Context, sessionID SessionID, participantID ParticipantID) (*NonceRecord, error)

	// ListNonceRecords returns all ledger rows for a session.
	ListNonceRecords(ctx context.Context, sessionID SessionID) ([]*NonceRecord, error)

	// ExpireStale flips every non-terminal session whose deadline precedes
	// nowMillis to expired and returns how many rows changed.
	ExpireStale(ctx context.Context, nowMillis int64) (int, error)

	// DeleteTerminalBefore removes terminal-state sessions, and their ledger
	// rows, whose UpdatedAt precedes the cutoff. Returns the number of sessions
	// deleted.
	DeleteTerminalBefore(ctx context.Context, cutoffMillis int64) (int, error)
}
