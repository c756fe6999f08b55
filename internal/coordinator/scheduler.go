package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"diario/internal/monitor/store"
)

const (
	DefaultTickInterval = time.Minute
	DefaultWorkers      = 4
)

// Scheduler periodically computes the due set and fans the runs out over a
// bounded worker pool. It holds no scheduling state of its own: "due" is
// derived from each identity's last_run_at and interval, and exclusivity
// comes from the lease store, so any number of scheduler instances can
// tick concurrently.
type Scheduler struct {
	identities store.IdentityStore
	runner     *Runner

	tick    time.Duration
	workers int
	now     func() time.Time
	logger  *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(identities store.IdentityStore, runner *Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		identities: identities,
		runner:     runner,
		tick:       DefaultTickInterval,
		workers:    DefaultWorkers,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is canceled. The loop itself only blocks to
// enqueue work; fetches, backoff sleeps and commits all happen on the
// worker pool.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
				}
			}
		}
	}
}

// Tick runs one scheduling cycle and returns the number of identities whose
// runs completed (contention skips excluded). Per-identity failures are
// isolated: one identity's bad day never affects another's schedule.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	identities, err := s.identities.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active identities: %w", err)
	}

	now := s.now()
	var completed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, identity := range identities {
		if !identity.Due(now) {
			continue
		}
		g.Go(func() error {
			outcome, err := s.runner.Run(ctx, identity)
			if err != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "run errored",
						"identity_id", identity.ID, "error", err)
				}
				return nil
			}
			if !outcome.Skipped {
				completed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(completed.Load()), nil
}
