package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diario/internal/monitor/models"
	"diario/internal/seenset"
	"diario/pkg/platform/sentinel"
)

// fakeDeliverer records deliveries and fails the natural keys it is told to.
type fakeDeliverer struct {
	delivered []models.PublicationEvent
	failKeys  map[string]bool
}

func (d *fakeDeliverer) Deliver(_ context.Context, event models.PublicationEvent) error {
	if d.failKeys[event.NaturalKey] {
		return errors.New("downstream unavailable")
	}
	d.delivered = append(d.delivered, event)
	return nil
}

func commitEvent(t *testing.T, store *seenset.InMemoryStore, identityID uuid.UUID, key string, at time.Time) {
	t.Helper()
	_, err := store.CommitNew(context.Background(), models.PublicationRecord{
		IdentityID:  identityID,
		NaturalKey:  key,
		FirstSeenAt: at,
		Payload:     models.PublicationPayload{CaseNumber: "0001234-56.2026.8.26.0100"},
	})
	require.NoError(t, err)
}

func TestFlushDeliversPendingEventsInOrder(t *testing.T) {
	store := seenset.NewInMemoryStore()
	deliverer := &fakeDeliverer{}
	dispatcher := New(store, deliverer)

	identityID := uuid.New()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	commitEvent(t, store, identityID, "p2", base.Add(time.Minute))
	commitEvent(t, store, identityID, "p1", base)

	delivered, err := dispatcher.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, delivered)
	require.Len(t, deliverer.delivered, 2)
	assert.Equal(t, "p1", deliverer.delivered[0].NaturalKey)
	assert.Equal(t, "p2", deliverer.delivered[1].NaturalKey)

	pending, err := store.PendingEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlushLeavesFailedDeliveriesPending(t *testing.T) {
	store := seenset.NewInMemoryStore()
	deliverer := &fakeDeliverer{failKeys: map[string]bool{"p1": true}}
	dispatcher := New(store, deliverer)

	identityID := uuid.New()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	commitEvent(t, store, identityID, "p1", base)
	commitEvent(t, store, identityID, "p2", base.Add(time.Minute))

	delivered, err := dispatcher.Flush(context.Background())
	require.NoError(t, err)

	// One failure does not block the rest of the batch.
	assert.Equal(t, 1, delivered)

	pending, err := store.PendingEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].NaturalKey)

	// Once downstream recovers the event goes out on the next flush.
	deliverer.failKeys = nil
	delivered, err = dispatcher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestFlushRedeliversWhenAckFails(t *testing.T) {
	store := &ackFailingStore{InMemoryStore: seenset.NewInMemoryStore(), failures: 1}
	deliverer := &fakeDeliverer{}
	dispatcher := New(store, deliverer)

	identityID := uuid.New()
	commitEvent(t, store.InMemoryStore, identityID, "p1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))

	delivered, err := dispatcher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Len(t, deliverer.delivered, 1)

	// The ack write failed, so the consumer sees the event twice. That is
	// the at-least-once contract.
	delivered, err = dispatcher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Len(t, deliverer.delivered, 2)
}

func TestFlushHonorsBatchSize(t *testing.T) {
	store := seenset.NewInMemoryStore()
	deliverer := &fakeDeliverer{}
	dispatcher := New(store, deliverer, WithBatchSize(2))

	identityID := uuid.New()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i, key := range []string{"p1", "p2", "p3"} {
		commitEvent(t, store, identityID, key, base.Add(time.Duration(i)*time.Minute))
	}

	delivered, err := dispatcher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	delivered, err = dispatcher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestFlushStopsOnCanceledContext(t *testing.T) {
	store := seenset.NewInMemoryStore()
	dispatcher := New(store, &fakeDeliverer{})
	commitEvent(t, store, uuid.New(), "p1", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dispatcher.Flush(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// ackFailingStore fails the first MarkDelivered calls, then recovers.
type ackFailingStore struct {
	*seenset.InMemoryStore
	failures int
}

func (s *ackFailingStore) MarkDelivered(ctx context.Context, identityID uuid.UUID, naturalKey string, at time.Time) error {
	if s.failures > 0 {
		s.failures--
		return sentinel.ErrUnavailable
	}
	return s.InMemoryStore.MarkDelivered(ctx, identityID, naturalKey, at)
}
