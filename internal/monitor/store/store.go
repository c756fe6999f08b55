// Package store holds the engine-facing persistence interfaces for
// monitored identities and run logs. Identities are owned by the
// configuration collaborator; the engine only reads them and advances the
// two fields it owns (last run time and the attention flag).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
)

type IdentityStore interface {
	// ListActive returns identities eligible for scheduling.
	ListActive(ctx context.Context) ([]models.MonitoredIdentity, error)

	// FindByID returns one identity, or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (models.MonitoredIdentity, error)

	// AdvanceLastRun moves the identity's scheduling cursor. Called only on
	// success, empty result, or terminal failure; never on transient
	// failure, so the next tick retries the same window.
	AdvanceLastRun(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkAttention flags the identity for the configuration collaborator
	// after a terminal failure.
	MarkAttention(ctx context.Context, id uuid.UUID, reason string) error
}

type RunLogStore interface {
	Append(ctx context.Context, log models.RunLog) error
	ListByIdentity(ctx context.Context, id uuid.UUID, limit int) ([]models.RunLog, error)
}
