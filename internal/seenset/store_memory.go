package seenset

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

type seenKey struct {
	identityID uuid.UUID
	naturalKey string
}

// InMemoryStore keeps the seen-set in process memory. It mirrors the
// Postgres store's semantics exactly so unit tests exercise the same
// contract the production store honors.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[seenKey]models.PublicationRecord
	events  map[seenKey]models.PublicationEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[seenKey]models.PublicationRecord),
		events:  make(map[seenKey]models.PublicationEvent),
	}
}

func (s *InMemoryStore) Seen(_ context.Context, identityID uuid.UUID, naturalKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[seenKey{identityID, naturalKey}]
	return ok, nil
}

func (s *InMemoryStore) CommitNew(_ context.Context, record models.PublicationRecord) (models.PublicationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seenKey{record.IdentityID, record.NaturalKey}
	if _, ok := s.records[key]; ok {
		return models.PublicationEvent{}, sentinel.ErrConflict
	}

	event := models.PublicationEvent{
		IdentityID: record.IdentityID,
		NaturalKey: record.NaturalKey,
		Payload:    record.Payload,
		EmittedAt:  record.FirstSeenAt,
	}
	s.records[key] = record
	s.events[key] = event
	return event, nil
}

func (s *InMemoryStore) FindRecord(_ context.Context, identityID uuid.UUID, naturalKey string) (models.PublicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[seenKey{identityID, naturalKey}]; ok {
		return record, nil
	}
	return models.PublicationRecord{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) PendingEvents(_ context.Context, limit int) ([]models.PublicationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []models.PublicationEvent
	for _, event := range s.events {
		if event.DeliveredAt == nil {
			pending = append(pending, event)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].EmittedAt.Before(pending[j].EmittedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *InMemoryStore) MarkDelivered(_ context.Context, identityID uuid.UUID, naturalKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seenKey{identityID, naturalKey}
	event, ok := s.events[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	event.DeliveredAt = &at
	s.events[key] = event
	return nil
}

// RecordCount reports the number of committed records, for tests.
func (s *InMemoryStore) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// EventCount reports the number of emitted events, for tests.
func (s *InMemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
