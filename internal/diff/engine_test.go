package diff

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

func candidate(key string) models.PublicationCandidate {
	return models.PublicationCandidate{
		NaturalKey: key,
		ObservedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Payload: models.PublicationPayload{
			CaseNumber:  "0001234-56.2026.8.26.0100",
			Court:       "TJSP",
			PublishedAt: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
			Content:     "Intimação da parte autora para manifestação.",
		},
	}
}

func TestApplyCommitsUnseenCandidates(t *testing.T) {
	store := seenset.NewInMemoryStore()
	engine := New(store)
	identityID := uuid.New()

	result, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{
		candidate("p1"),
		candidate("p2"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Found)
	assert.Equal(t, 2, result.New)
	require.Len(t, result.Events, 2)
	assert.Equal(t, 2, store.RecordCount())
}

func TestApplySkipsSeenAndCommitsOnlyNew(t *testing.T) {
	store := seenset.NewInMemoryStore()
	engine := New(store)
	identityID := uuid.New()

	_, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{
		candidate("p1"),
		candidate("p2"),
	})
	require.NoError(t, err)

	// Overlapping window re-fetches p1 and p2 alongside a fresh p3.
	result, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{
		candidate("p1"),
		candidate("p2"),
		candidate("p3"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Found)
	assert.Equal(t, 1, result.New)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "p3", result.Events[0].NaturalKey)
	assert.Equal(t, 3, store.RecordCount())
}

func TestApplyIsIdempotent(t *testing.T) {
	store := seenset.NewInMemoryStore()
	engine := New(store)
	identityID := uuid.New()
	batch := []models.PublicationCandidate{candidate("p1"), candidate("p2")}

	_, err := engine.Apply(context.Background(), identityID, batch)
	require.NoError(t, err)

	result, err := engine.Apply(context.Background(), identityID, batch)
	require.NoError(t, err)

	assert.Equal(t, 0, result.New)
	assert.Empty(t, result.Events)
	assert.Equal(t, 2, store.RecordCount())
	assert.Equal(t, 2, store.EventCount())
}

func TestApplyTreatsCommitConflictAsNoOp(t *testing.T) {
	store := &racingStore{Store: seenset.NewInMemoryStore()}
	engine := New(store)
	identityID := uuid.New()

	// The store reports every key unseen, so Apply always attempts the
	// commit and hits the uniqueness conflict an overlapping run produced.
	_, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{candidate("p1")})
	require.NoError(t, err)

	result, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{candidate("p1")})
	require.NoError(t, err)
	assert.Equal(t, 0, result.New)
}

func TestApplyAbortsOnStoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	store := &failingStore{Store: seenset.NewInMemoryStore(), failAfter: 1, err: boom}
	engine := New(store)
	identityID := uuid.New()

	result, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{
		candidate("p1"),
		candidate("p2"),
		candidate("p3"),
	})
	require.ErrorIs(t, err, boom)

	// The first commit landed before the failure; a rerun resumes from it.
	assert.Equal(t, 1, result.New)

	resumed, err := engine.Apply(context.Background(), identityID, []models.PublicationCandidate{
		candidate("p1"),
		candidate("p2"),
		candidate("p3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resumed.New)
}

// racingStore reports every key unseen so commits always race.
type racingStore struct {
	seenset.Store
}

func (s *racingStore) Seen(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

// failingStore lets failAfter commits through, then fails the rest once.
type failingStore struct {
	seenset.Store
	failAfter int
	err       error
	commits   int
}

func (s *failingStore) CommitNew(ctx context.Context, record models.PublicationRecord) (models.PublicationEvent, error) {
	if s.commits >= s.failAfter && s.err != nil {
		err := s.err
		s.err = nil
		return models.PublicationEvent{}, err
	}
	event, err := s.Store.CommitNew(ctx, record)
	if err == nil || errors.Is(err, sentinel.ErrConflict) {
		s.commits++
	}
	return event, err
}
