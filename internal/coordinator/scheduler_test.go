package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diario/internal/monitor/models"
	"diario/internal/registry"
	"diario/pkg/platform/backoff"
)

func TestTickRunsOnlyDueIdentities(t *testing.T) {
	client := &scriptedClient{steps: []func() ([]registry.RawRecord, error){respond()}}
	h := newRunnerHarness(t, client)

	// Never ran: due immediately.
	due := h.addIdentity(t, models.MonitoredIdentity{BarNumber: "111111", Jurisdiction: "SP"})

	// Ran recently: not due yet.
	recent := h.now.Add(-time.Hour)
	h.addIdentity(t, models.MonitoredIdentity{
		BarNumber:       "222222",
		Jurisdiction:    "RJ",
		PollingInterval: 24 * time.Hour,
		LastRunAt:       &recent,
	})

	// Interval elapsed: due again.
	stale := h.now.Add(-25 * time.Hour)
	h.addIdentity(t, models.MonitoredIdentity{
		BarNumber:       "333333",
		Jurisdiction:    "MG",
		PollingInterval: 24 * time.Hour,
		LastRunAt:       &stale,
	})

	scheduler := NewScheduler(h.identities, h.runner,
		WithSchedulerClock(func() time.Time { return h.now }),
		WithWorkers(2),
	)

	completed, err := scheduler.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, completed)
	assert.Equal(t, 2, client.callCount())
	require.NotNil(t, h.identity(t, due.ID).LastRunAt)
}

func TestTickSkipsInactiveIdentities(t *testing.T) {
	client := &scriptedClient{steps: []func() ([]registry.RawRecord, error){respond()}}
	h := newRunnerHarness(t, client)

	inactive := models.MonitoredIdentity{BarNumber: "111111", Jurisdiction: "SP"}
	inactive = h.addIdentity(t, inactive)
	inactive.Active = false
	require.NoError(t, h.identities.Save(context.Background(), inactive))

	scheduler := NewScheduler(h.identities, h.runner)
	completed, err := scheduler.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, client.callCount())
}

func TestTickIsolatesPerIdentityFailures(t *testing.T) {
	// Every fetch fails terminally; the tick itself still succeeds and the
	// second identity still ran.
	client := &scriptedClient{steps: []func() ([]registry.RawRecord, error){
		fail(registry.CategoryBadRequest),
	}}
	h := newRunnerHarness(t, client, backoff.WithMaxAttempts(1))

	first := h.addIdentity(t, models.MonitoredIdentity{BarNumber: "111111", Jurisdiction: "SP"})
	second := h.addIdentity(t, models.MonitoredIdentity{BarNumber: "222222", Jurisdiction: "RJ"})

	scheduler := NewScheduler(h.identities, h.runner,
		WithSchedulerClock(func() time.Time { return h.now }),
	)

	completed, err := scheduler.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, completed)
	assert.True(t, h.identity(t, first.ID).NeedsAttention)
	assert.True(t, h.identity(t, second.ID).NeedsAttention)
}

func TestTickExcludesContentionSkipsFromCompletedCount(t *testing.T) {
	client := &scriptedClient{steps: []func() ([]registry.RawRecord, error){respond()}}
	h := newRunnerHarness(t, client)

	identity := h.addIdentity(t, models.MonitoredIdentity{BarNumber: "111111", Jurisdiction: "SP"})
	_, err := h.leases.Acquire(context.Background(), identity.ID, uuid.New(), 10*time.Minute)
	require.NoError(t, err)

	scheduler := NewScheduler(h.identities, h.runner,
		WithSchedulerClock(func() time.Time { return h.now }),
	)

	completed, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, completed)
}
