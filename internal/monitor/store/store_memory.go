package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

// In-memory stores keep unit tests and single-node deployments lightweight.
// They intentionally favor clarity over performance.
type InMemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]models.MonitoredIdentity
}

func NewInMemoryIdentityStore() *InMemoryIdentityStore {
	return &InMemoryIdentityStore{identities: make(map[uuid.UUID]models.MonitoredIdentity)}
}

// Save upserts an identity. In production the configuration collaborator
// owns writes; this exists for wiring and tests.
func (s *InMemoryIdentityStore) Save(_ context.Context, identity models.MonitoredIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.ID] = identity
	return nil
}

func (s *InMemoryIdentityStore) ListActive(_ context.Context) ([]models.MonitoredIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []models.MonitoredIdentity
	for _, identity := range s.identities {
		if identity.Active {
			active = append(active, identity)
		}
	}
	return active, nil
}

func (s *InMemoryIdentityStore) FindByID(_ context.Context, id uuid.UUID) (models.MonitoredIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if identity, ok := s.identities[id]; ok {
		return identity, nil
	}
	return models.MonitoredIdentity{}, sentinel.ErrNotFound
}

func (s *InMemoryIdentityStore) AdvanceLastRun(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.LastRunAt = &at
	s.identities[id] = identity
	return nil
}

func (s *InMemoryIdentityStore) MarkAttention(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.NeedsAttention = true
	identity.AttentionReason = reason
	s.identities[id] = identity
	return nil
}

type InMemoryRunLogStore struct {
	mu   sync.RWMutex
	logs map[uuid.UUID][]models.RunLog
}

func NewInMemoryRunLogStore() *InMemoryRunLogStore {
	return &InMemoryRunLogStore{logs: make(map[uuid.UUID][]models.RunLog)}
}

func (s *InMemoryRunLogStore) Append(_ context.Context, log models.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.IdentityID] = append(s.logs[log.IdentityID], log)
	return nil
}

func (s *InMemoryRunLogStore) ListByIdentity(_ context.Context, id uuid.UUID, limit int) ([]models.RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := append([]models.RunLog{}, s.logs[id]...)
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}
