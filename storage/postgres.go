package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// Schema creates the coordinator's tables. The UNIQUE constraint on
// nonce_commitment is load-bearing: it is the storage-level defense against
// nonce reuse and must never be relaxed.
const Schema = `
CREATE TABLE IF NOT EXISTS signing_sessions (
	session_id                  TEXT PRIMARY KEY,
	group_id                    TEXT NOT NULL,
	message_hash                BYTEA NOT NULL,
	message_template            BYTEA,
	participants                TEXT[] NOT NULL,
	threshold                   INT NOT NULL,
	nonce_commitments           JSONB NOT NULL DEFAULT '{}'::jsonb,
	partial_signatures          JSONB NOT NULL DEFAULT '{}'::jsonb,
	final_signature             JSONB,
	status                      TEXT NOT NULL,
	error_message               TEXT NOT NULL DEFAULT '',
	created_at                  BIGINT NOT NULL,
	updated_at                  BIGINT NOT NULL,
	expires_at                  BIGINT NOT NULL,
	nonce_collection_started_at BIGINT NOT NULL DEFAULT 0,
	signing_started_at          BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS nonce_commitments (
	session_id       TEXT NOT NULL REFERENCES signing_sessions(session_id) ON DELETE CASCADE,
	participant_id   TEXT NOT NULL,
	nonce_commitment BYTEA NOT NULL CONSTRAINT nonce_commitment_unique UNIQUE,
	used             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       BIGINT NOT NULL,
	used_at          BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, participant_id)
);

CREATE INDEX IF NOT EXISTS signing_sessions_expiry_idx
	ON signing_sessions (expires_at) WHERE status NOT IN ('completed', 'failed', 'expired');
`

const (
	pgUniqueViolation     = "23505"
	nonceUniqueConstraint = "nonce_commitment_unique"
	sessionColumns        = `session_id, group_id, message_hash, message_template, participants, threshold,
		nonce_commitments, partial_signatures, final_signature, status, error_message,
		created_at, updated_at, expires_at, nonce_collection_started_at, signing_started_at`
)

// PostgresRepository is the production SessionRepository backed by a pgx
// connection pool. Optimistic locking is a conditional UPDATE on updated_at;
// the aggregating transition is a conditional UPDATE on status.
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresRepository wraps an existing pool and applies the schema.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) (*PostgresRepository, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresRepository{pool: pool, log: log}, nil
}

// ConnectPostgres opens a pool for the given connection string and returns a
// repository using it.
func ConnectPostgres(ctx context.Context, connString string, log *slog.Logger) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return NewPostgresRepository(ctx, pool, log)
}

// Close releases the underlying pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *interfaces.Session) error {
	commitments, signatures, final, err := marshalSessionMaps(session)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO signing_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		string(session.ID), string(session.GroupID), session.MessageHash.Bytes(), session.MessageTemplate,
		participantStrings(session.Participants), session.Threshold,
		commitments, signatures, final,
		string(session.Status), session.ErrorMessage,
		session.CreatedAt, session.UpdatedAt, session.ExpiresAt,
		session.NonceCollectionStartedAt, session.SigningStartedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("session %s already exists", session.ID)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id interfaces.SessionID) (*interfaces.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM signing_sessions WHERE session_id = $1`, string(id))
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, id)
	}
	return session, err
}

func (r *PostgresRepository) UpdateSessionOCC(ctx context.Context, session *interfaces.Session, prevUpdatedAt int64) error {
	commitments, signatures, final, err := marshalSessionMaps(session)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE signing_sessions SET
			nonce_commitments = $1, partial_signatures = $2, final_signature = $3,
			status = $4, error_message = $5, updated_at = $6,
			nonce_collection_started_at = $7, signing_started_at = $8
		WHERE session_id = $9 AND updated_at = $10`,
		commitments, signatures, final,
		string(session.Status), session.ErrorMessage, session.UpdatedAt,
		session.NonceCollectionStartedAt, session.SigningStartedAt,
		string(session.ID), prevUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM signing_sessions WHERE session_id = $1)`,
			string(session.ID)).Scan(&exists); err == nil && !exists {
			return fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, session.ID)
		}
		return fmt.Errorf("%w: session %s", interfaces.ErrConcurrentUpdate, session.ID)
	}
	return nil
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, id interfaces.SessionID, from, to interfaces.SessionStatus, nowMillis int64) error {
	// GREATEST keeps the lock token strictly increasing even when the
	// transition lands in the same millisecond as the previous write, so a
	// stale optimistic-lock write cannot still match and revert the status.
	tag, err := r.pool.Exec(ctx, `
		UPDATE signing_sessions SET status = $1, updated_at = GREATEST(updated_at + 1, $2)
		WHERE session_id = $3 AND status = $4`,
		string(to), nowMillis, string(id), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to transition session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM signing_sessions WHERE session_id = $1`, string(id)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", interfaces.ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read session status: %w", err)
	}
	if interfaces.SessionStatus(current) == to && to == interfaces.StatusAggregating {
		return fmt.Errorf("%w: session %s", interfaces.ErrAlreadyAggregating, id)
	}
	return fmt.Errorf("%w: session %s is %s, expected %s", interfaces.ErrWrongState, id, current, from)
}

func (r *PostgresRepository) InsertNonceRecord(ctx context.Context, record *interfaces.NonceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO nonce_commitments (session_id, participant_id, nonce_commitment, used, created_at, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(record.SessionID), string(record.ParticipantID), record.Commitment,
		record.Used, record.CreatedAt, record.UsedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == nonceUniqueConstraint {
				r.log.Error("Nonce commitment value seen before, refusing submission",
					slog.String("sessionID", string(record.SessionID)),
					slog.String("participantID", string(record.ParticipantID)))
				return fmt.Errorf("%w: storage uniqueness constraint", interfaces.ErrNonceReuse)
			}
			return fmt.Errorf("%w: participant %s in session %s",
				interfaces.ErrDuplicateCommitment, record.ParticipantID, record.SessionID)
		}
		return fmt.Errorf("failed to insert nonce record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkNonceUsed(ctx context.Context, sessionID interfaces.SessionID, participantID interfaces.ParticipantID, usedAtMillis int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE nonce_commitments SET used = TRUE, used_at = $1
		WHERE session_id = $2 AND participant_id = $3 AND used = FALSE`,
		usedAtMillis, string(sessionID), string(participantID),
	)
	if err != nil {
		return fmt.Errorf("failed to mark nonce used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: participant %s in session %s", interfaces.ErrCommitmentMissing, participantID, sessionID)
	}
	return nil
}

func (r *PostgresRepository) GetNonceRecord(ctx context.Context, sessionID interfaces.SessionID, participantID interfaces.ParticipantID) (*interfaces.NonceRecord, error) {
	record := &interfaces.NonceRecord{SessionID: sessionID, ParticipantID: participantID}
	err := r.pool.QueryRow(ctx, `
		SELECT nonce_commitment, used, created_at, used_at FROM nonce_commitments
		WHERE session_id = $1 AND participant_id = $2`,
		string(sessionID), string(participantID),
	).Scan(&record.Commitment, &record.Used, &record.CreatedAt, &record.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: participant %s in session %s", interfaces.ErrCommitmentMissing, participantID, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce record: %w", err)
	}
	return record, nil
}

func (r *PostgresRepository) ListNonceRecords(ctx context.Context, sessionID interfaces.SessionID) ([]*interfaces.NonceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT participant_id, nonce_commitment, used, created_at, used_at
		FROM nonce_commitments WHERE session_id = $1`,
		string(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list nonce records: %w", err)
	}
	defer rows.Close()

	var records []*interfaces.NonceRecord
	for rows.Next() {
		record := &interfaces.NonceRecord{SessionID: sessionID}
		var participant string
		if err := rows.Scan(&participant, &record.Commitment, &record.Used, &record.CreatedAt, &record.UsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan nonce record: %w", err)
		}
		record.ParticipantID = interfaces.ParticipantID(participant)
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, nowMillis int64) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE signing_sessions SET status = $1, updated_at = GREATEST(updated_at + 1, $2)
		WHERE expires_at < $2 AND status NOT IN ($3, $4, $5)`,
		string(interfaces.StatusExpired), nowMillis,
		string(interfaces.StatusCompleted), string(interfaces.StatusFailed), string(interfaces.StatusExpired),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteTerminalBefore(ctx context.Context, cutoffMillis int64) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM signing_sessions
		WHERE updated_at < $1 AND status IN ($2, $3, $4)`,
		cutoffMillis,
		string(interfaces.StatusCompleted), string(interfaces.StatusFailed), string(interfaces.StatusExpired),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// marshalSessionMaps serializes the per-participant maps and final signature
// for JSONB columns.
func marshalSessionMaps(session *interfaces.Session) (commitments, signatures []byte, final []byte, err error) {
	commitments, err = json.Marshal(session.NonceCommitments)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal nonce commitments: %w", err)
	}
	signatures, err = json.Marshal(session.PartialSignatures)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal partial signatures: %w", err)
	}
	if session.FinalSignature != nil {
		final, err = json.Marshal(session.FinalSignature)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal final signature: %w", err)
		}
	}
	return commitments, signatures, final, nil
}

func participantStrings(participants []interfaces.ParticipantID) []string {
	out := make([]string, len(participants))
	for i, p := range participants {
		out[i] = string(p)
	}
	return out
}

func scanSession(row pgx.Row) (*interfaces.Session, error) {
	var (
		session                          interfaces.Session
		id, groupID, status              string
		messageHash                      []byte
		participants                     []string
		commitments, signatures, finalJS []byte
	)
	err := row.Scan(
		&id, &groupID, &messageHash, &session.MessageTemplate, &participants, &session.Threshold,
		&commitments, &signatures, &finalJS, &status, &session.ErrorMessage,
		&session.CreatedAt, &session.UpdatedAt, &session.ExpiresAt,
		&session.NonceCollectionStartedAt, &session.SigningStartedAt,
	)
	if err != nil {
		return nil, err
	}

	session.ID = interfaces.SessionID(id)
	session.GroupID = interfaces.GroupID(groupID)
	session.Status = interfaces.SessionStatus(status)
	session.MessageHash, err = interfaces.NewMessageHashFromBytes(messageHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt message hash for session %s: %w", id, err)
	}

	session.Participants = make([]interfaces.ParticipantID, len(participants))
	for i, p := range participants {
		session.Participants[i] = interfaces.ParticipantID(p)
	}

	if err := json.Unmarshal(commitments, &session.NonceCommitments); err != nil {
		return nil, fmt.Errorf("corrupt nonce commitments for session %s: %w", id, err)
	}
	if err := json.Unmarshal(signatures, &session.PartialSignatures); err != nil {
		return nil, fmt.Errorf("corrupt partial signatures for session %s: %w", id, err)
	}
	if len(finalJS) > 0 {
		session.FinalSignature = &interfaces.FinalSignature{}
		if err := json.Unmarshal(finalJS, session.FinalSignature); err != nil {
			return nil, fmt.Errorf("corrupt final signature for session %s: %w", id, err)
		}
	}
	return &session, nil
}
