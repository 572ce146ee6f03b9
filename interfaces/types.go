package interfaces

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageHash is the 32-byte digest of the payload to be signed, typically a
// Nostr event id.
type MessageHash [32]byte

// NewMessageHashFromBytes creates a message hash from a raw 32-byte slice.
func NewMessageHashFromBytes(source []byte) (MessageHash, error) {
	if len(source) != 32 {
		return MessageHash{}, errors.New("invalid MessageHash conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return MessageHash(hash), nil
}

// NewMessageHashFromHex creates a message hash from a 64-character hex string.
func NewMessageHashFromHex(source string) (MessageHash, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return MessageHash{}, errors.New("invalid message hash length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return MessageHash{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return MessageHash(hash), nil
}

// HashMessage computes the message hash of a raw payload.
func HashMessage(payload []byte) MessageHash {
	return MessageHash(sha256.Sum256(payload))
}

// String returns hex representation.
func (h MessageHash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw 32-byte digest.
func (h MessageHash) Bytes() []byte {
	return h[:]
}

// Equal compares two message hashes.
func (h MessageHash) Equal(other MessageHash) bool {
	return bytes.Equal(h[:], other[:])
}

// IsZero reports whether the hash is all zeroes, which no real digest is.
func (h MessageHash) IsZero() bool {
	return h == MessageHash{}
}

// SessionID uniquely identifies one signing ceremony.
type SessionID string

// GroupID identifies the family federation that owns a session.
type GroupID string

// ParticipantID identifies a guardian or steward within a federation.
type ParticipantID string

// SessionStatus tracks a session through the signing rounds.
type SessionStatus string

const (
	// StatusPending means the session exists but no nonce has been submitted.
	StatusPending SessionStatus = "pending"
	// StatusNonceCollection means at least one but fewer than threshold nonces arrived.
	StatusNonceCollection SessionStatus = "nonce_collection"
	// StatusSigning means enough nonces arrived and signature shares are being collected.
	StatusSigning SessionStatus = "signing"
	// StatusAggregating means enough shares arrived and one process is combining them.
	StatusAggregating SessionStatus = "aggregating"
	// StatusCompleted means the final signature is persisted.
	StatusCompleted SessionStatus = "completed"
	// StatusFailed is an absorbing state entered on an explicit failure report.
	StatusFailed SessionStatus = "failed"
	// StatusExpired is an absorbing state entered once the deadline passes.
	StatusExpired SessionStatus = "expired"
)

// IsTerminal reports whether no further protocol progress is possible.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// AcceptsNonces reports whether round 1 submissions are valid in this status.
func (s SessionStatus) AcceptsNonces() bool {
	return s == StatusPending || s == StatusNonceCollection
}

// Threshold bounds. A federation never has more than seven guardians, and a
// single-signer ceremony is still a valid degenerate case.
const (
	MinThreshold = 1
	MaxThreshold = 7
)

// DefaultSessionTTL is the default window for completing a ceremony. It absorbs
// two network round trips plus human-in-the-loop delay across geographically
// distributed participants while bounding how long a half-completed ceremony
// can hold state.
const DefaultSessionTTL = 600 * time.Second

// FinalSignature is the aggregated Schnorr signature: a 33-byte compressed
// curve point R and a 32-byte scalar S.
type FinalSignature struct {
	R []byte `json:"r"`
	S []byte `json:"s"`
}

// Session is one threshold-signing ceremony. Participants never appear more
// than once in NonceCommitments or PartialSignatures, and FinalSignature is
// set if and only if Status is completed.
type Session struct {
	ID              SessionID       `json:"session_id"`
	GroupID         GroupID         `json:"group_id"`
	MessageHash     MessageHash     `json:"message_hash"`
	MessageTemplate []byte          `json:"message_template,omitempty"`
	Participants    []ParticipantID `json:"participants"`
	Threshold       int             `json:"threshold"`

	NonceCommitments  map[ParticipantID][]byte `json:"nonce_commitments"`
	PartialSignatures map[ParticipantID][]byte `json:"partial_signatures"`
	FinalSignature    *FinalSignature          `json:"final_signature,omitempty"`

	Status       SessionStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`

	// Epoch-millisecond timestamps. UpdatedAt doubles as the optimistic-lock
	// token: every conditional write compares against the value read.
	CreatedAt                int64 `json:"created_at"`
	UpdatedAt                int64 `json:"updated_at"`
	ExpiresAt                int64 `json:"expires_at"`
	NonceCollectionStartedAt int64 `json:"nonce_collection_started_at,omitempty"`
	SigningStartedAt         int64 `json:"signing_started_at,omitempty"`
}

// HasParticipant reports whether id is in the session's participant set.
func (s *Session) HasParticipant(id ParticipantID) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// IsExpiredAt reports whether the session deadline has passed at the given
// wall-clock instant.
func (s *Session) IsExpiredAt(nowMillis int64) bool {
	return s.ExpiresAt < nowMillis
}

// Clone returns a deep copy so repository callers cannot alias stored state.
func (s *Session) Clone() *Session {
	dup := *s
	dup.Participants = append([]ParticipantID(nil), s.Participants...)
	dup.MessageTemplate = append([]byte(nil), s.MessageTemplate...)

	dup.NonceCommitments = make(map[ParticipantID][]byte, len(s.NonceCommitments))
	for p, c := range s.NonceCommitments {
		dup.NonceCommitments[p] = append([]byte(nil), c...)
	}
	dup.PartialSignatures = make(map[ParticipantID][]byte, len(s.PartialSignatures))
	for p, sig := range s.PartialSignatures {
		dup.PartialSignatures[p] = append([]byte(nil), sig...)
	}
	if s.FinalSignature != nil {
		dup.FinalSignature = &FinalSignature{
			R: append([]byte(nil), s.FinalSignature.R...),
			S: append([]byte(nil), s.FinalSignature.S...),
		}
	}
	return &dup
}

// NonceRecord is one row of the append-only nonce ledger. The commitment value
// is unique across the entire ledger; a consumed commitment is permanently
// marked used.
type NonceRecord struct {
	SessionID     SessionID     `json:"session_id"`
	ParticipantID ParticipantID `json:"participant_id"`
	Commitment    []byte        `json:"nonce_commitment"`
	Used          bool          `json:"used"`
	CreatedAt     int64         `json:"created_at"`
	UsedAt        int64         `json:"used_at,omitempty"`
}

// RoundProgress is returned by round submissions so callers can poll for
// threshold completion without a second read.
type RoundProgress struct {
	Count        int  `json:"count"`
	Threshold    int  `json:"threshold"`
	ThresholdMet bool `json:"threshold_met"`
}

// RecoveryReport summarizes the persisted state of a ceremony so a restarted
// coordinator can resume it without re-deriving anything.
type RecoveryReport struct {
	SessionID  SessionID     `json:"session_id"`
	Status     SessionStatus `json:"status"`
	Expired    bool          `json:"expired"`
	NonceCount int           `json:"nonce_count"`
	ShareCount int           `json:"share_count"`

	// UsedNonceCount is the number of ledger rows already consumed by a
	// signature share. A used count above ShareCount means a share submission
	// burned its commitment but lost the session merge; that participant must
	// resubmit the same share and may not pick a fresh nonce.
	UsedNonceCount int `json:"used_nonce_count"`

	MissingNonces []ParticipantID `json:"missing_nonces"`
	MissingShares []ParticipantID `json:"missing_shares"`
	CanAggregate  bool            `json:"can_aggregate"`
}

// CompletionNotice is emitted once a ceremony reaches a terminal outcome, for
// delivery to all participants by an external notifier.
type CompletionNotice struct {
	SessionID     SessionID     `json:"session_id"`
	Status        SessionStatus `json:"status"`
	PublicationID string        `json:"publication_id,omitempty"`
}
