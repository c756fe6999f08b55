// Package dispatch drains the publication event outbox and hands each event
// to the downstream delivery collaborator at least once. Delivery state
// lives beside the event, decoupled from the seen-set commit: a delivery
// failure never re-processes a stored record, and never silently drops the
// event — it simply stays pending for the next flush.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"diario/internal/monitor/metrics"
	"diario/internal/monitor/models"
	"diario/internal/seenset"
)

const (
	DefaultFlushInterval = 15 * time.Second
	DefaultBatchSize     = 100
)

// Deliverer hands one event to the external notification collaborator.
// Deliveries may repeat under failure and retry; consumers must be
// idempotent by (identity_id, natural_key).
type Deliverer interface {
	Deliver(ctx context.Context, event models.PublicationEvent) error
}

// Dispatcher polls pending events and delivers them in emission order.
type Dispatcher struct {
	store     seenset.Store
	deliverer Deliverer

	interval time.Duration
	batch    int
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithFlushInterval(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(dp *Dispatcher) {
		if n > 0 {
			dp.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(dp *Dispatcher) { dp.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) { dp.now = now }
}

func New(store seenset.Store, deliverer Deliverer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		deliverer: deliverer,
		interval:  DefaultFlushInterval,
		batch:     DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run flushes on an interval until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Flush(ctx); err != nil {
				if d.logger != nil {
					d.logger.ErrorContext(ctx, "dispatch flush failed", "error", err)
				}
			}
		}
	}
}

// Flush delivers pending events and acknowledges the ones that succeed.
// A failed delivery leaves the event pending; a delivery that succeeds but
// whose acknowledgment write fails will be redelivered — that is the
// at-least-once contract, not a bug.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	pending, err := d.store.PendingEvents(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending events: %w", err)
	}

	delivered := 0
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := d.deliverer.Deliver(ctx, event); err != nil {
			d.metrics.RecordDelivery(false)
			if d.logger != nil {
				d.logger.WarnContext(ctx, "event delivery failed, will retry",
					"identity_id", event.IdentityID,
					"natural_key", event.NaturalKey,
					"error", err)
			}
			continue
		}
		d.metrics.RecordDelivery(true)
		if err := d.store.MarkDelivered(ctx, event.IdentityID, event.NaturalKey, d.now()); err != nil {
			if d.logger != nil {
				d.logger.WarnContext(ctx, "delivery ack failed, event will redeliver",
					"identity_id", event.IdentityID,
					"natural_key", event.NaturalKey,
					"error", err)
			}
			continue
		}
		delivered++
	}
	return delivered, nil
}
