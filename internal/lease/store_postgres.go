package lease

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

// PostgresStore persists leases in a single-row-per-identity table. The
// acquire primitive is one upsert whose WHERE clause only fires on expired
// rows, so the single-writer guarantee rides entirely on the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the lease table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS run_leases (
			identity_id UUID PRIMARY KEY,
			owner_token UUID NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure lease schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Acquire(ctx context.Context, identityID, owner uuid.UUID, ttl time.Duration) (models.RunLease, error) {
	lease := models.RunLease{IdentityID: identityID, OwnerToken: owner}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO run_leases (identity_id, owner_token, acquired_at, expires_at)
		 VALUES ($1, $2, now(), now() + $3)
		 ON CONFLICT (identity_id) DO UPDATE
		     SET owner_token = EXCLUDED.owner_token,
		         acquired_at = EXCLUDED.acquired_at,
		         expires_at  = EXCLUDED.expires_at
		     WHERE run_leases.expires_at <= now()
		 RETURNING acquired_at, expires_at`,
		identityID, owner, ttl).Scan(&lease.AcquiredAt, &lease.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RunLease{}, fmt.Errorf("identity %s: %w", identityID, sentinel.ErrLeaseHeld)
	}
	if err != nil {
		return models.RunLease{}, fmt.Errorf("acquire lease: %w", err)
	}
	return lease, nil
}

func (s *PostgresStore) Release(ctx context.Context, identityID, owner uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM run_leases WHERE identity_id = $1 AND owner_token = $2`,
		identityID, owner)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
