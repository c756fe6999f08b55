// Package seenset owns the engine's only persistent truth: which
// publications an identity has already been notified about. The store's one
// non-trivial primitive is CommitNew, an atomic insert of a record together
// with its paired event, so "recorded" and "event emitted" cannot diverge.
package seenset

import (
	"context"
	"time"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
)

// Store maps (identity_id, natural_key) to publication records and carries
// the event outbox written in the same transaction.
type Store interface {
	// Seen reports whether the key is already committed for the identity.
	Seen(ctx context.Context, identityID uuid.UUID, naturalKey string) (bool, error)

	// CommitNew atomically inserts the record and its paired event.
	// Returns sentinel.ErrConflict (possibly wrapped) when the key is
	// already committed; the caller treats that as a silent no-op.
	CommitNew(ctx context.Context, record models.PublicationRecord) (models.PublicationEvent, error)

	// FindRecord returns a committed record, or sentinel.ErrNotFound.
	FindRecord(ctx context.Context, identityID uuid.UUID, naturalKey string) (models.PublicationRecord, error)

	// PendingEvents lists undelivered events, oldest first. A non-positive
	// limit means no bound.
	PendingEvents(ctx context.Context, limit int) ([]models.PublicationEvent, error)

	// MarkDelivered records the delivery acknowledgment for an event.
	MarkDelivered(ctx context.Context, identityID uuid.UUID, naturalKey string, at time.Time) error
}
