package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

// PostgresIdentityStore reads monitored identities and writes the two
// engine-owned fields. The table itself is provisioned by the configuration
// collaborator's migrations; EnsureSchema exists for tests and standalone
// deployments.
type PostgresIdentityStore struct {
	pool *pgxpool.Pool
}

func NewPostgresIdentityStore(pool *pgxpool.Pool) *PostgresIdentityStore {
	return &PostgresIdentityStore{pool: pool}
}

func (s *PostgresIdentityStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS monitored_identities (
			identity_id UUID PRIMARY KEY,
			bar_number TEXT NOT NULL,
			jurisdiction TEXT NOT NULL,
			case_number TEXT NOT NULL DEFAULT '',
			sealed_access_password TEXT NOT NULL DEFAULT '',
			polling_interval_seconds BIGINT NOT NULL,
			lookback_days INT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			needs_attention BOOLEAN NOT NULL DEFAULT FALSE,
			attention_reason TEXT NOT NULL DEFAULT '',
			last_run_at TIMESTAMPTZ
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}

const identityColumns = `identity_id, bar_number, jurisdiction, case_number,
	sealed_access_password, polling_interval_seconds, lookback_days,
	active, needs_attention, attention_reason, last_run_at`

// Save upserts an identity. Production writes go through the configuration
// collaborator; this exists for tests and standalone deployments.
func (s *PostgresIdentityStore) Save(ctx context.Context, identity models.MonitoredIdentity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monitored_identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (identity_id) DO UPDATE SET
			bar_number = EXCLUDED.bar_number,
			jurisdiction = EXCLUDED.jurisdiction,
			case_number = EXCLUDED.case_number,
			sealed_access_password = EXCLUDED.sealed_access_password,
			polling_interval_seconds = EXCLUDED.polling_interval_seconds,
			lookback_days = EXCLUDED.lookback_days,
			active = EXCLUDED.active,
			needs_attention = EXCLUDED.needs_attention,
			attention_reason = EXCLUDED.attention_reason,
			last_run_at = EXCLUDED.last_run_at`,
		identity.ID,
		identity.BarNumber,
		identity.Jurisdiction,
		identity.CaseNumber,
		identity.SealedAccessPassword,
		int64(identity.PollingInterval/time.Second),
		identity.LookbackDays,
		identity.Active,
		identity.NeedsAttention,
		identity.AttentionReason,
		identity.LastRunAt,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *PostgresIdentityStore) ListActive(ctx context.Context) ([]models.MonitoredIdentity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM monitored_identities WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("list active identities: %w", err)
	}
	defer rows.Close()

	var identities []models.MonitoredIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

func (s *PostgresIdentityStore) FindByID(ctx context.Context, id uuid.UUID) (models.MonitoredIdentity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM monitored_identities WHERE identity_id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MonitoredIdentity{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.MonitoredIdentity{}, err
	}
	return identity, nil
}

func (s *PostgresIdentityStore) AdvanceLastRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitored_identities SET last_run_at = $2 WHERE identity_id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("advance last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresIdentityStore) MarkAttention(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitored_identities
		 SET needs_attention = TRUE, attention_reason = $2
		 WHERE identity_id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark attention: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (models.MonitoredIdentity, error) {
	var identity models.MonitoredIdentity
	var intervalSeconds int64
	err := row.Scan(
		&identity.ID,
		&identity.BarNumber,
		&identity.Jurisdiction,
		&identity.CaseNumber,
		&identity.SealedAccessPassword,
		&intervalSeconds,
		&identity.LookbackDays,
		&identity.Active,
		&identity.NeedsAttention,
		&identity.AttentionReason,
		&identity.LastRunAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MonitoredIdentity{}, err
		}
		return models.MonitoredIdentity{}, fmt.Errorf("scan identity: %w", err)
	}
	identity.PollingInterval = time.Duration(intervalSeconds) * time.Second
	return identity, nil
}

// PostgresRunLogStore appends run outcomes for operational history.
type PostgresRunLogStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRunLogStore(pool *pgxpool.Pool) *PostgresRunLogStore {
	return &PostgresRunLogStore{pool: pool}
}

func (s *PostgresRunLogStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS run_logs (
			id BIGSERIAL PRIMARY KEY,
			identity_id UUID NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			found_count INT NOT NULL,
			new_count INT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS run_logs_identity_idx ON run_logs (identity_id, executed_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure run log schema: %w", err)
	}
	return nil
}

func (s *PostgresRunLogStore) Append(ctx context.Context, log models.RunLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (identity_id, executed_at, status, found_count, new_count, error)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.IdentityID, log.ExecutedAt, log.Status, log.Found, log.New, log.Error)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

func (s *PostgresRunLogStore) ListByIdentity(ctx context.Context, id uuid.UUID, limit int) ([]models.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT identity_id, executed_at, status, found_count, new_count, error
		 FROM run_logs WHERE identity_id = $1
		 ORDER BY executed_at DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var log models.RunLog
		if err := rows.Scan(&log.IdentityID, &log.ExecutedAt, &log.Status, &log.Found, &log.New, &log.Error); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run logs: %w", err)
	}
	return logs, nil
}
