package coordinator

import (
	"context"
	"fmt"

	"github.com/OV1-Kenobi/satnam-frost/frost"
	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// AggregateSignatures combines the collected signature shares and nonce
// commitments into the final signature and completes the session. Only the
// winner of TransitionToAggregating should call it.
//
// Parsing or validation failures leave the session in aggregating and return
// ErrAggregationFailed: a malformed share may be a transient issue the same
// or another operator can resolve by retrying, or the session can be failed
// explicitly with FailSession.
func (c *Coordinator) AggregateSignatures(ctx context.Context, sessionID interfaces.SessionID) (*interfaces.FinalSignature, error) {
	session, err := c.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != interfaces.StatusAggregating {
		return nil, fmt.Errorf("%w: session %s is %s, expected %s",
			interfaces.ErrWrongState, sessionID, session.Status, interfaces.StatusAggregating)
	}
	if len(session.PartialSignatures) < session.Threshold {
		return nil, fmt.Errorf("%w: %d of %d shares",
			interfaces.ErrInsufficientShares, len(session.PartialSignatures), session.Threshold)
	}

	// Align shares with their nonce commitments in participant order. Only
	// participants that submitted a share contribute to R.
	var shares, commitments [][]byte
	for _, participant := range session.Participants {
		share, ok := session.PartialSignatures[participant]
		if !ok {
			continue
		}
		commitment, ok := session.NonceCommitments[participant]
		if !ok {
			return nil, fmt.Errorf("%w: participant %s has a share but no commitment",
				interfaces.ErrAggregationFailed, participant)
		}
		shares = append(shares, share)
		commitments = append(commitments, commitment)
	}

	signature, err := frost.Aggregate(shares, commitments)
	if err != nil {
		c.log.Error("Signature aggregation failed",
			"sessionID", string(sessionID), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAggregationFailed, err)
	}

	prev := session.UpdatedAt
	session.FinalSignature = signature
	session.Status = interfaces.StatusCompleted
	session.UpdatedAt = nextToken(c.nowMillis(), prev)
	if err := c.repo.UpdateSessionOCC(ctx, session, prev); err != nil {
		return nil, err
	}

	c.log.Info("Signing session completed",
		"sessionID", string(sessionID),
		"shares", len(shares))

	publicationID := c.publishCompleted(ctx, session, signature)
	c.emitNotice(ctx, interfaces.CompletionNotice{
		SessionID:     sessionID,
		Status:        interfaces.StatusCompleted,
		PublicationID: publicationID,
	})
	return signature, nil
}

// VerifyAggregatedSignature checks the session's final signature over the
// given message hash against the owning federation's group public key. The
// key always comes from the federation registry, never from the caller, to
// rule out key-substitution attacks.
func (c *Coordinator) VerifyAggregatedSignature(ctx context.Context, sessionID interfaces.SessionID, messageHash interfaces.MessageHash) (bool, error) {
	session, err := c.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.Status != interfaces.StatusCompleted || session.FinalSignature == nil {
		return false, fmt.Errorf("%w: session %s is %s", interfaces.ErrNoFinalSignature, sessionID, session.Status)
	}

	groupPub, err := c.registry.GroupPublicKey(ctx, session.GroupID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve group public key for %s: %w", session.GroupID, err)
	}

	return frost.Verify(*session.FinalSignature, groupPub, messageHash), nil
}

// publishCompleted hands the finished signature to the publication adapter.
// Publication failure never un-completes the session; the signature is
// durable and publication can be redriven externally.
func (c *Coordinator) publishCompleted(ctx context.Context, session *interfaces.Session, signature *interfaces.FinalSignature) string {
	if c.publisher == nil {
		return ""
	}

	publicationID, err := c.publisher.Publish(ctx, session.ID, *signature, session.MessageTemplate)
	if err != nil {
		c.log.Error("Failed to publish completed signature",
			"sessionID", string(session.ID), "err", err)
		return ""
	}

	c.log.Info("Completed signature published",
		"sessionID", string(session.ID),
		"publicationID", publicationID)
	return publicationID
}
