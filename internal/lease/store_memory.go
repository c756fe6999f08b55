package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

// InMemoryStore implements single-process leasing. The mutex makes
// acquire-if-absent-or-expired atomic, matching the guarantees of the
// Postgres and Redis implementations.
type InMemoryStore struct {
	mu     sync.Mutex
	leases map[uuid.UUID]models.RunLease
	now    func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock injects a deterministic clock for expiry tests.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		leases: make(map[uuid.UUID]models.RunLease),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Acquire(_ context.Context, identityID, owner uuid.UUID, ttl time.Duration) (models.RunLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.leases[identityID]; ok && !existing.Expired(now) {
		return models.RunLease{}, fmt.Errorf("identity %s: %w", identityID, sentinel.ErrLeaseHeld)
	}

	granted := models.RunLease{
		IdentityID: identityID,
		OwnerToken: owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	s.leases[identityID] = granted
	return granted, nil
}

func (s *InMemoryStore) Release(_ context.Context, identityID, owner uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.leases[identityID]; ok && existing.OwnerToken == owner {
		delete(s.leases, identityID)
	}
	return nil
}
