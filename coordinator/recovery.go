package coordinator

import (
	"context"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// RecoverSession diagnoses an interrupted ceremony from its persisted state:
// which participants still owe a nonce commitment or a signature share,
// whether the share count already meets the threshold (so aggregation may
// proceed even if the status field lags behind), and whether the deadline has
// passed. It never mutates the session, so it is safe to call from a freshly
// restarted coordinator before deciding how to resume.
func (c *Coordinator) RecoverSession(ctx context.Context, id interfaces.SessionID) (*interfaces.RecoveryReport, error) {
	session, err := c.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &interfaces.RecoveryReport{
		SessionID:  id,
		Status:     session.Status,
		Expired:    session.IsExpiredAt(c.nowMillis()) || session.Status == interfaces.StatusExpired,
		NonceCount: len(session.NonceCommitments),
		ShareCount: len(session.PartialSignatures),
	}

	// The ledger is the authority on commitment consumption; the session maps
	// can lag behind it when a submission lost its merge.
	records, err := c.repo.ListNonceRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Used {
			report.UsedNonceCount++
		}
	}

	for _, participant := range session.Participants {
		if _, ok := session.NonceCommitments[participant]; !ok {
			report.MissingNonces = append(report.MissingNonces, participant)
		}
		if _, ok := session.PartialSignatures[participant]; !ok {
			report.MissingShares = append(report.MissingShares, participant)
		}
	}

	report.CanAggregate = report.ShareCount >= session.Threshold &&
		!report.Expired &&
		session.Status != interfaces.StatusCompleted &&
		session.Status != interfaces.StatusFailed

	return report, nil
}
