package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/OV1-Kenobi/satnam-frost/frost"
	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// SubmitNonceCommitment records a participant's round 1 nonce commitment.
//
// The commitment is first appended to the nonce ledger, whose storage-level
// uniqueness constraint rejects any value ever seen before (the primary
// defense against nonce reuse), and then merged into the session under the
// optimistic lock. An ErrConcurrentUpdate result means another participant's
// submission landed first; re-reading and retrying is safe because the ledger
// insert is idempotent per participant.
func (c *Coordinator) SubmitNonceCommitment(ctx context.Context, sessionID interfaces.SessionID, participantID interfaces.ParticipantID, commitment []byte) (*interfaces.RoundProgress, error) {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.Status.AcceptsNonces() {
		return nil, fmt.Errorf("%w: session %s is %s", interfaces.ErrWrongState, sessionID, session.Status)
	}
	if !session.HasParticipant(participantID) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownParticipant, participantID)
	}
	if _, exists := session.NonceCommitments[participantID]; exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateCommitment, participantID)
	}
	if _, err := frost.ParseCommitment(commitment); err != nil {
		return nil, fmt.Errorf("invalid nonce commitment from %s: %w", participantID, err)
	}

	now := c.nowMillis()
	record, err := c.repo.GetNonceRecord(ctx, sessionID, participantID)
	switch {
	case err == nil:
		// A prior attempt inserted the ledger row but lost the session merge.
		// The same value may be merged now; a different one is a double submit.
		if !bytes.Equal(record.Commitment, commitment) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateCommitment, participantID)
		}
	case errors.Is(err, interfaces.ErrCommitmentMissing):
		err = c.repo.InsertNonceRecord(ctx, &interfaces.NonceRecord{
			SessionID:     sessionID,
			ParticipantID: participantID,
			Commitment:    commitment,
			Used:          false,
			CreatedAt:     now,
		})
		if errors.Is(err, interfaces.ErrNonceReuse) {
			c.log.Error("SECURITY: nonce commitment reuse detected",
				"sessionID", string(sessionID),
				"participantID", string(participantID))
			return nil, err
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to read nonce ledger: %w", err)
	}

	prev := session.UpdatedAt
	session.NonceCommitments[participantID] = commitment
	if len(session.NonceCommitments) == 1 {
		session.NonceCollectionStartedAt = now
	}
	if session.Status == interfaces.StatusPending {
		session.Status = interfaces.StatusNonceCollection
	}

	count := len(session.NonceCommitments)
	thresholdMet := count >= session.Threshold
	if thresholdMet {
		session.Status = interfaces.StatusSigning
		// Only stamp once so a retried or late submission cannot clobber it.
		if session.SigningStartedAt == 0 {
			session.SigningStartedAt = now
		}
	}

	session.UpdatedAt = nextToken(now, prev)
	if err := c.repo.UpdateSessionOCC(ctx, session, prev); err != nil {
		return nil, err
	}

	c.log.Info("Nonce commitment recorded",
		"sessionID", string(sessionID),
		"participantID", string(participantID),
		"count", count,
		"thresholdMet", thresholdMet)
	return &interfaces.RoundProgress{Count: count, Threshold: session.Threshold, ThresholdMet: thresholdMet}, nil
}

// SubmitPartialSignature records a participant's round 2 signature share,
// consuming their nonce commitment. The session must be in the signing state.
// When the returned progress reports the threshold met, the caller should
// attempt TransitionToAggregating and, if it wins, run AggregateSignatures.
func (c *Coordinator) SubmitPartialSignature(ctx context.Context, sessionID interfaces.SessionID, participantID interfaces.ParticipantID, share []byte) (*interfaces.RoundProgress, error) {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != interfaces.StatusSigning {
		return nil, fmt.Errorf("%w: session %s is %s, expected %s",
			interfaces.ErrWrongState, sessionID, session.Status, interfaces.StatusSigning)
	}
	if !session.HasParticipant(participantID) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownParticipant, participantID)
	}
	if _, exists := session.PartialSignatures[participantID]; exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateShare, participantID)
	}
	if _, err := frost.ParseShare(share); err != nil {
		return nil, fmt.Errorf("invalid signature share from %s: %w", participantID, err)
	}

	record, err := c.repo.GetNonceRecord(ctx, sessionID, participantID)
	if err != nil {
		return nil, err
	}

	now := c.nowMillis()
	if !record.Used {
		// Consuming the commitment must succeed exactly once; a conditional
		// write failure here is fatal to the submission.
		if err := c.repo.MarkNonceUsed(ctx, sessionID, participantID, now); err != nil {
			return nil, err
		}
	}
	// record.Used with no share in the map means a prior attempt consumed the
	// commitment but lost the session merge; proceeding completes the retry.

	prev := session.UpdatedAt
	session.PartialSignatures[participantID] = share

	count := len(session.PartialSignatures)
	thresholdMet := count >= session.Threshold

	session.UpdatedAt = nextToken(now, prev)
	if err := c.repo.UpdateSessionOCC(ctx, session, prev); err != nil {
		return nil, err
	}

	c.log.Info("Partial signature recorded",
		"sessionID", string(sessionID),
		"participantID", string(participantID),
		"count", count,
		"thresholdMet", thresholdMet)
	return &interfaces.RoundProgress{Count: count, Threshold: session.Threshold, ThresholdMet: thresholdMet}, nil
}

// TransitionToAggregating atomically moves a session from signing to
// aggregating. Exactly one of several concurrent callers wins and returns
// true; only the winner should invoke AggregateSignatures. Losers get false
// with a nil error.
func (c *Coordinator) TransitionToAggregating(ctx context.Context, sessionID interfaces.SessionID) (bool, error) {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if len(session.PartialSignatures) < session.Threshold {
		return false, fmt.Errorf("%w: %d of %d shares",
			interfaces.ErrInsufficientShares, len(session.PartialSignatures), session.Threshold)
	}

	err = c.repo.TransitionStatus(ctx, sessionID, interfaces.StatusSigning, interfaces.StatusAggregating, c.nowMillis())
	if errors.Is(err, interfaces.ErrAlreadyAggregating) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.log.Info("Session transitioned to aggregating", "sessionID", string(sessionID))
	return true, nil
}
