// Package coordinator schedules and executes monitoring runs. The runner
// owns the lease lifecycle and the Fetch → Extract → Diff pipeline for one
// identity; the scheduler fans due identities out over a worker pool.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"diario/internal/analysis"
	"diario/internal/diff"
	"diario/internal/lease"
	"diario/internal/monitor/metrics"
	"diario/internal/monitor/models"
	"diario/internal/monitor/store"
	"diario/internal/registry"
	"diario/internal/registry/extract"
	"diario/pkg/platform/backoff"
	"diario/pkg/platform/circuit"
	"diario/pkg/platform/sentinel"
)

// DefaultLeaseTTL bounds the worst-case run duration: the run's context
// deadline equals the lease expiry, so a hung run stops issuing work before
// another worker can reclaim the identity.
const DefaultLeaseTTL = 10 * time.Minute

// Outcome summarizes one scheduling attempt for an identity.
type Outcome struct {
	// Skipped means another worker held the lease. Not a failure: the
	// identity is simply not ours this tick.
	Skipped bool

	Status models.RunStatus
	Found  int
	New    int
	Events []models.PublicationEvent
}

// Runner executes one identity's monitoring run under a lease.
type Runner struct {
	identities store.IdentityStore
	runLogs    store.RunLogStore
	leases     lease.Store
	client     registry.Client
	extractor  extract.Extractor
	analyzer   *analysis.Analyzer
	engine     *diff.Engine
	retry      *backoff.Policy
	breaker    *circuit.Breaker

	leaseTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithLeaseTTL(ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		if ttl > 0 {
			r.leaseTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func WithBreaker(b *circuit.Breaker) RunnerOption {
	return func(r *Runner) { r.breaker = b }
}

func WithRetryPolicy(p *backoff.Policy) RunnerOption {
	return func(r *Runner) { r.retry = p }
}

func NewRunner(
	identities store.IdentityStore,
	runLogs store.RunLogStore,
	leases lease.Store,
	client registry.Client,
	extractor extract.Extractor,
	engine *diff.Engine,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		identities: identities,
		runLogs:    runLogs,
		leases:     leases,
		client:     client,
		extractor:  extractor,
		analyzer:   analysis.New(),
		engine:     engine,
		retry:      backoff.New(registry.IsTransient),
		leaseTTL:   DefaultLeaseTTL,
		now:        time.Now,
		tracer:     otel.Tracer("diario/coordinator"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one monitoring run for the identity. Contention returns a
// skipped outcome with no side effects. All other paths release the lease
// on the way out; a crash instead leaves it to expire.
func (r *Runner) Run(ctx context.Context, identity models.MonitoredIdentity) (Outcome, error) {
	owner := uuid.New()
	granted, err := r.leases.Acquire(ctx, identity.ID, owner, r.leaseTTL)
	if errors.Is(err, sentinel.ErrLeaseHeld) {
		r.metrics.RecordLeaseContention()
		return Outcome{Skipped: true}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire lease for %s: %w", identity.ID, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.leases.Release(releaseCtx, identity.ID, owner); err != nil && r.logger != nil {
			r.logger.WarnContext(releaseCtx, "lease release failed", "identity_id", identity.ID, "error", err)
		}
	}()

	// The run never outlives its lease.
	runCtx, cancel := context.WithDeadline(ctx, granted.ExpiresAt)
	defer cancel()

	runCtx, span := r.tracer.Start(runCtx, "monitor.run",
		trace.WithAttributes(
			attribute.String("identity_id", identity.ID.String()),
			attribute.String("jurisdiction", identity.Jurisdiction),
		))
	defer span.End()

	started := r.now()
	outcome, runErr := r.pipeline(runCtx, identity, started)
	r.metrics.ObserveRun(string(outcome.Status), r.now().Sub(started))

	r.appendRunLog(runCtx, identity.ID, started, outcome, runErr)

	if err := r.completeRun(runCtx, identity, started, outcome, runErr); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// pipeline is the Fetch → Extract → Diff body of a run.
func (r *Runner) pipeline(ctx context.Context, identity models.MonitoredIdentity, started time.Time) (Outcome, error) {
	windowStart, windowEnd := identity.Window(started)
	query := registry.Query{
		BarNumber:            identity.BarNumber,
		Jurisdiction:         identity.Jurisdiction,
		CaseNumber:           identity.CaseNumber,
		SealedAccessPassword: identity.SealedAccessPassword,
		WindowStart:          windowStart,
		WindowEnd:            windowEnd,
	}

	raws, err := r.fetch(ctx, query)
	if err != nil {
		if registry.IsTerminal(err) {
			return Outcome{Status: models.RunTerminalFailure}, err
		}
		return Outcome{Status: models.RunTransientFailure}, err
	}

	candidates := r.extractAll(ctx, identity.ID, raws)

	result, err := r.engine.Apply(ctx, identity.ID, candidates)
	if err != nil {
		// Store trouble is retryable by the next tick; the window is not
		// advanced, and idempotent commits make the partial batch safe.
		return Outcome{
			Status: models.RunTransientFailure,
			Found:  result.Found,
			New:    result.New,
			Events: result.Events,
		}, err
	}
	r.metrics.RecordDiff(result.New, result.Found-result.New)

	status := models.RunSucceeded
	if result.Found == 0 {
		status = models.RunEmpty
	}
	return Outcome{Status: status, Found: result.Found, New: result.New, Events: result.Events}, nil
}

// fetch wraps the registry client with the circuit breaker and the retry
// policy. The query is identical across attempts. An open breaker drops the
// retry budget to a single attempt per run: the upstream still gets asked,
// so a recovery closes the circuit again, but a dead upstream costs one
// request instead of a full backoff cycle.
func (r *Runner) fetch(ctx context.Context, query registry.Query) ([]registry.RawRecord, error) {
	if r.breaker != nil && r.breaker.IsOpen() {
		return r.search(ctx, query)
	}

	var records []registry.RawRecord
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = r.search(ctx, query)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// search issues one registry call and feeds the outcome to the breaker and
// the fetch-failure counter.
func (r *Runner) search(ctx context.Context, query registry.Query) ([]registry.RawRecord, error) {
	records, err := r.client.Search(ctx, query)
	if r.breaker != nil {
		if err != nil && registry.IsTransient(err) {
			r.breaker.RecordFailure()
		} else if err == nil {
			r.breaker.RecordSuccess()
		}
	}
	if err != nil {
		r.metrics.RecordFetchFailure(string(registry.ErrorCategory(err)))
		return nil, err
	}
	return records, nil
}

// extractAll maps raw records to candidates, isolating per-record
// anomalies: one unparseable row never aborts the batch.
func (r *Runner) extractAll(ctx context.Context, identityID uuid.UUID, raws []registry.RawRecord) []models.PublicationCandidate {
	candidates := make([]models.PublicationCandidate, 0, len(raws))
	for _, raw := range raws {
		candidate, err := r.extractor.Extract(raw)
		if err != nil {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "extraction anomaly, record skipped",
					"identity_id", identityID, "error", err)
			}
			continue
		}
		if candidate == nil {
			continue
		}
		r.analyzer.Enrich(&candidate.Payload)
		candidates = append(candidates, *candidate)
	}
	return candidates
}

// completeRun applies the state-advancement rules: success and empty
// results advance last_run_at; terminal failures advance it too (no point
// hammering a permanently broken request) and flag the identity; transient
// failures leave it untouched so the next tick retries the same window.
func (r *Runner) completeRun(ctx context.Context, identity models.MonitoredIdentity, started time.Time, outcome Outcome, runErr error) error {
	switch outcome.Status {
	case models.RunSucceeded, models.RunEmpty:
		if err := r.identities.AdvanceLastRun(ctx, identity.ID, started); err != nil {
			return fmt.Errorf("advance last run for %s: %w", identity.ID, err)
		}
	case models.RunTerminalFailure:
		r.metrics.RecordAttention()
		if err := r.identities.MarkAttention(ctx, identity.ID, runErr.Error()); err != nil {
			return fmt.Errorf("mark attention for %s: %w", identity.ID, err)
		}
		if err := r.identities.AdvanceLastRun(ctx, identity.ID, started); err != nil {
			return fmt.Errorf("advance last run for %s: %w", identity.ID, err)
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "run failed terminally, identity flagged",
				"identity_id", identity.ID, "error", runErr)
		}
	case models.RunTransientFailure:
		if r.logger != nil {
			r.logger.WarnContext(ctx, "run failed transiently, window will be retried",
				"identity_id", identity.ID, "error", runErr)
		}
	}
	return nil
}

func (r *Runner) appendRunLog(ctx context.Context, identityID uuid.UUID, started time.Time, outcome Outcome, runErr error) {
	if r.runLogs == nil {
		return
	}
	log := models.RunLog{
		IdentityID: identityID,
		ExecutedAt: started,
		Status:     outcome.Status,
		Found:      outcome.Found,
		New:        outcome.New,
	}
	if runErr != nil {
		log.Error = runErr.Error()
	}
	if err := r.runLogs.Append(ctx, log); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "run log append failed", "identity_id", identityID, "error", err)
	}
}
