package seenset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

// PostgresStore persists the seen-set and its event outbox. The
// record-plus-event commit runs in one transaction with the record's
// primary key as the uniqueness anchor, so a crash mid-batch can never
// leave an event without a backing record.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the two durable tables if missing. Deployments with
// managed migrations can skip this.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS publication_records (
			identity_id UUID NOT NULL,
			natural_key TEXT NOT NULL,
			first_seen_at TIMESTAMPTZ NOT NULL,
			payload_snapshot JSONB NOT NULL,
			PRIMARY KEY (identity_id, natural_key)
		);
		CREATE TABLE IF NOT EXISTS publication_events (
			identity_id UUID NOT NULL,
			natural_key TEXT NOT NULL,
			payload_snapshot JSONB NOT NULL,
			emitted_at TIMESTAMPTZ NOT NULL,
			delivered_at TIMESTAMPTZ,
			PRIMARY KEY (identity_id, natural_key),
			FOREIGN KEY (identity_id, natural_key)
				REFERENCES publication_records (identity_id, natural_key)
		);
		CREATE INDEX IF NOT EXISTS publication_events_pending_idx
			ON publication_events (emitted_at) WHERE delivered_at IS NULL;
	`)
	if err != nil {
		return fmt.Errorf("ensure seenset schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Seen(ctx context.Context, identityID uuid.UUID, naturalKey string) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM publication_records
			WHERE identity_id = $1 AND natural_key = $2
		)`, identityID, naturalKey).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("seen lookup: %w", err)
	}
	return seen, nil
}

func (s *PostgresStore) CommitNew(ctx context.Context, record models.PublicationRecord) (models.PublicationEvent, error) {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return models.PublicationEvent{}, fmt.Errorf("marshal payload snapshot: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.PublicationEvent{}, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO publication_records (identity_id, natural_key, first_seen_at, payload_snapshot)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identity_id, natural_key) DO NOTHING`,
		record.IdentityID, record.NaturalKey, record.FirstSeenAt, payload)
	if err != nil {
		return models.PublicationEvent{}, fmt.Errorf("insert publication record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.PublicationEvent{}, fmt.Errorf("publication %s already committed: %w",
			record.NaturalKey, sentinel.ErrConflict)
	}

	event := models.PublicationEvent{
		IdentityID: record.IdentityID,
		NaturalKey: record.NaturalKey,
		Payload:    record.Payload,
		EmittedAt:  record.FirstSeenAt,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO publication_events (identity_id, natural_key, payload_snapshot, emitted_at)
		 VALUES ($1, $2, $3, $4)`,
		event.IdentityID, event.NaturalKey, payload, event.EmittedAt)
	if err != nil {
		return models.PublicationEvent{}, fmt.Errorf("insert publication event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.PublicationEvent{}, fmt.Errorf("commit publication tx: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) FindRecord(ctx context.Context, identityID uuid.UUID, naturalKey string) (models.PublicationRecord, error) {
	record := models.PublicationRecord{
		IdentityID: identityID,
		NaturalKey: naturalKey,
	}
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT first_seen_at, payload_snapshot FROM publication_records
		 WHERE identity_id = $1 AND natural_key = $2`,
		identityID, naturalKey).Scan(&record.FirstSeenAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PublicationRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.PublicationRecord{}, fmt.Errorf("find publication record: %w", err)
	}
	if err := json.Unmarshal(payload, &record.Payload); err != nil {
		return models.PublicationRecord{}, fmt.Errorf("unmarshal payload snapshot: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]models.PublicationEvent, error) {
	query := `SELECT identity_id, natural_key, payload_snapshot, emitted_at
		 FROM publication_events
		 WHERE delivered_at IS NULL
		 ORDER BY emitted_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var events []models.PublicationEvent
	for rows.Next() {
		var event models.PublicationEvent
		var payload []byte
		if err := rows.Scan(&event.IdentityID, &event.NaturalKey, &payload, &event.EmittedAt); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, identityID uuid.UUID, naturalKey string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE publication_events SET delivered_at = $3
		 WHERE identity_id = $1 AND natural_key = $2`,
		identityID, naturalKey, at)
	if err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
