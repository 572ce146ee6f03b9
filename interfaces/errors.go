package interfaces

import "errors"

// Error taxonomy for the signing coordinator. Operations wrap these sentinels
// with detail via fmt.Errorf("%w: ..."); callers classify with errors.Is. A
// rejected operation always leaves the session exactly as it was.
var (
	// ErrInvalidThreshold is returned when threshold is outside [MinThreshold, MaxThreshold].
	ErrInvalidThreshold = errors.New("threshold out of range")

	// ErrInvalidParticipants is returned when the participant set is smaller than
	// the threshold, empty, or contains duplicates.
	ErrInvalidParticipants = errors.New("invalid participant set")

	// ErrInvalidMessageHash is returned when the message hash is all zero.
	ErrInvalidMessageHash = errors.New("invalid message hash")

	// ErrSessionNotFound is returned when no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrWrongState is returned when an operation is attempted in a lifecycle
	// state that does not permit it.
	ErrWrongState = errors.New("operation not valid in current session state")

	// ErrSessionExpired is returned when the session deadline has passed. It is
	// checked before any state validation on every mutating call and is terminal
	// for the session.
	ErrSessionExpired = errors.New("session expired")

	// ErrNonceReuse is returned when a nonce commitment value has been seen
	// before, in any session. This is a security event: a reused nonce leaks the
	// private key. The storage layer enforces it with a uniqueness constraint so
	// it holds even if application-level checks are bypassed.
	ErrNonceReuse = errors.New("nonce commitment already used")

	// ErrDuplicateCommitment is returned when a participant already has a
	// commitment recorded for this session.
	ErrDuplicateCommitment = errors.New("participant already submitted a nonce commitment")

	// ErrDuplicateShare is returned when a participant already submitted a
	// signature share for this session.
	ErrDuplicateShare = errors.New("participant already submitted a signature share")

	// ErrUnknownParticipant is returned when the submitter is not in the
	// session's participant set.
	ErrUnknownParticipant = errors.New("participant not part of session")

	// ErrCommitmentMissing is returned when a signature share arrives from a
	// participant with no unused nonce commitment on record.
	ErrCommitmentMissing = errors.New("no unused nonce commitment on record for participant")

	// ErrConcurrentUpdate is returned when an optimistic-lock write loses a
	// race. The caller's view was stale; re-read and retry.
	ErrConcurrentUpdate = errors.New("concurrent update, retry with a fresh read")

	// ErrAlreadyAggregating is returned to transition-guard losers. Exactly one
	// caller wins the signing-to-aggregating transition; losers must not run the
	// aggregation.
	ErrAlreadyAggregating = errors.New("session already transitioned to aggregating")

	// ErrAggregationFailed is returned when share or commitment parsing fails
	// during aggregation. The session stays in aggregating so the same or
	// another operator can retry or fail it explicitly.
	ErrAggregationFailed = errors.New("signature aggregation failed")

	// ErrInsufficientShares is returned when aggregation is attempted with fewer
	// than threshold signature shares.
	ErrInsufficientShares = errors.New("insufficient signature shares for aggregation")

	// ErrNoFinalSignature is returned when verification is requested before the
	// session has completed.
	ErrNoFinalSignature = errors.New("session has no final signature")

	// ErrPermissionDenied is returned when the permission service denies session
	// creation, or when any authorization lookup fails (fail closed).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrApprovalPending is returned when session creation requires approvals
	// that have not yet reached the configured threshold.
	ErrApprovalPending = errors.New("approval threshold not yet met")

	// ErrApprovalNotFound is returned when no pending approval request exists
	// for the given id.
	ErrApprovalNotFound = errors.New("approval request not found")
)
