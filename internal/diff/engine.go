// Package diff computes which fetched candidates are genuinely new and
// promotes them to durable records with paired events. Each candidate is an
// independent atomic unit: a crash mid-batch leaves earlier commits intact
// and a rerun simply resumes with whichever candidates remain unseen.
package diff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
	"diario/internal/seenset"
	"diario/pkg/platform/sentinel"
)

// Result summarizes one diff pass over a candidate batch.
type Result struct {
	Found  int
	New    int
	Events []models.PublicationEvent
}

// Engine applies candidate batches against the seen-set store.
type Engine struct {
	store  seenset.Store
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(store seenset.Store, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs the dedup pass for one identity. Already-seen candidates are
// silent no-ops: re-fetching unchanged windows is expected. Only store
// infrastructure failures abort the batch.
func (e *Engine) Apply(ctx context.Context, identityID uuid.UUID, candidates []models.PublicationCandidate) (Result, error) {
	result := Result{Found: len(candidates)}

	for _, candidate := range candidates {
		seen, err := e.store.Seen(ctx, identityID, candidate.NaturalKey)
		if err != nil {
			return result, fmt.Errorf("seen-set lookup for %s: %w", candidate.NaturalKey, err)
		}
		if seen {
			continue
		}

		record := models.PublicationRecord{
			IdentityID:  identityID,
			NaturalKey:  candidate.NaturalKey,
			FirstSeenAt: candidate.ObservedAt,
			Payload:     candidate.Payload,
		}
		event, err := e.store.CommitNew(ctx, record)
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with an overlapping run; the record exists, the
			// outcome is identical, nothing to do.
			continue
		}
		if err != nil {
			return result, fmt.Errorf("commit %s: %w", candidate.NaturalKey, err)
		}

		result.New++
		result.Events = append(result.Events, event)
		if e.logger != nil {
			e.logger.InfoContext(ctx, "new publication committed",
				"identity_id", identityID,
				"natural_key", candidate.NaturalKey,
				"priority", candidate.Payload.Priority.String(),
			)
		}
	}
	return result, nil
}
