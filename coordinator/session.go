package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// CreateSessionParams describes a new signing ceremony.
type CreateSessionParams struct {
	GroupID      interfaces.GroupID
	MessageHash  interfaces.MessageHash
	Participants []interfaces.ParticipantID
	Threshold    int

	// MessageTemplate is the opaque payload echoed back to the publication
	// adapter on completion, typically the unsigned Nostr event.
	MessageTemplate []byte

	// TTL overrides the coordinator's default ceremony deadline when nonzero.
	TTL time.Duration
}

// CreateSession validates the parameters, generates a fresh session id, and
// persists a new pending session.
func (c *Coordinator) CreateSession(ctx context.Context, params CreateSessionParams) (*interfaces.Session, error) {
	if params.Threshold < interfaces.MinThreshold || params.Threshold > interfaces.MaxThreshold {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			interfaces.ErrInvalidThreshold, params.Threshold, interfaces.MinThreshold, interfaces.MaxThreshold)
	}
	if len(params.Participants) < params.Threshold {
		return nil, fmt.Errorf("%w: %d participants for threshold %d",
			interfaces.ErrInvalidParticipants, len(params.Participants), params.Threshold)
	}
	seen := make(map[interfaces.ParticipantID]struct{}, len(params.Participants))
	for _, p := range params.Participants {
		if p == "" {
			return nil, fmt.Errorf("%w: empty participant id", interfaces.ErrInvalidParticipants)
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", interfaces.ErrInvalidParticipants, p)
		}
		seen[p] = struct{}{}
	}
	if params.MessageHash.IsZero() {
		return nil, fmt.Errorf("%w: zero message hash", interfaces.ErrInvalidMessageHash)
	}

	ttl := params.TTL
	if ttl <= 0 {
		ttl = c.sessionTTL
	}

	now := c.nowMillis()
	session := &interfaces.Session{
		ID:                interfaces.SessionID(uuid.NewString()),
		GroupID:           params.GroupID,
		MessageHash:       params.MessageHash,
		MessageTemplate:   append([]byte(nil), params.MessageTemplate...),
		Participants:      append([]interfaces.ParticipantID(nil), params.Participants...),
		Threshold:         params.Threshold,
		NonceCommitments:  make(map[interfaces.ParticipantID][]byte),
		PartialSignatures: make(map[interfaces.ParticipantID][]byte),
		Status:            interfaces.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now + ttl.Milliseconds(),
	}

	if err := c.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.log.Info("Signing session created",
		"sessionID", string(session.ID),
		"groupID", string(session.GroupID),
		"threshold", session.Threshold,
		"participants", len(session.Participants))
	return session, nil
}

// GetSession returns the current persisted state of a session.
func (c *Coordinator) GetSession(ctx context.Context, id interfaces.SessionID) (*interfaces.Session, error) {
	return c.repo.GetSession(ctx, id)
}

// FailSession moves a non-terminal session to the absorbing failed state and
// records the reason. A completion notice with the failed status is emitted
// if a notifier is configured.
func (c *Coordinator) FailSession(ctx context.Context, id interfaces.SessionID, reason string) error {
	session, err := c.loadLive(ctx, id)
	if err != nil {
		return err
	}

	prev := session.UpdatedAt
	session.Status = interfaces.StatusFailed
	session.ErrorMessage = reason
	session.UpdatedAt = nextToken(c.nowMillis(), prev)
	if err := c.repo.UpdateSessionOCC(ctx, session, prev); err != nil {
		return err
	}

	c.log.Warn("Signing session failed", "sessionID", string(id), "reason", reason)
	c.emitNotice(ctx, interfaces.CompletionNotice{SessionID: id, Status: interfaces.StatusFailed})
	return nil
}

// ExpireStaleSessions flips every non-terminal session past its deadline to
// expired and returns how many were affected.
func (c *Coordinator) ExpireStaleSessions(ctx context.Context) (int, error) {
	expired, err := c.repo.ExpireStale(ctx, c.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	if expired > 0 {
		c.log.Info("Expired stale signing sessions", "count", expired)
	}
	return expired, nil
}

// CleanupOldSessions deletes terminal sessions, and their nonce ledger rows,
// last touched more than retentionDays ago.
func (c *Coordinator) CleanupOldSessions(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 1 {
		return 0, errors.New("retention must be at least one day")
	}

	cutoff := c.now().AddDate(0, 0, -retentionDays).UnixMilli()
	deleted, err := c.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old sessions: %w", err)
	}
	if deleted > 0 {
		c.log.Info("Deleted old signing sessions", "count", deleted, "retentionDays", retentionDays)
	}
	return deleted, nil
}

// loadLive fetches a session and enforces the deadline before any state
// check. Touching an expired session flips it to expired as a side effect;
// the flip is best effort since the expiry sweep will catch it anyway.
func (c *Coordinator) loadLive(ctx context.Context, id interfaces.SessionID) (*interfaces.Session, error) {
	session, err := c.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	now := c.nowMillis()
	if session.Status == interfaces.StatusExpired {
		return nil, fmt.Errorf("%w: session %s", interfaces.ErrSessionExpired, id)
	}
	if !session.Status.IsTerminal() && session.IsExpiredAt(now) {
		if err := c.repo.TransitionStatus(ctx, id, session.Status, interfaces.StatusExpired, now); err != nil {
			c.log.Debug("Expiry transition lost a race", "sessionID", string(id), "err", err)
		}
		return nil, fmt.Errorf("%w: session %s", interfaces.ErrSessionExpired, id)
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: session %s is %s", interfaces.ErrWrongState, id, session.Status)
	}
	return session, nil
}

func (c *Coordinator) emitNotice(ctx context.Context, notice interfaces.CompletionNotice) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyCompletion(ctx, notice); err != nil {
		c.log.Error("Failed to deliver completion notice",
			"sessionID", string(notice.SessionID), "err", err)
	}
}
