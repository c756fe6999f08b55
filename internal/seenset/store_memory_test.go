package seenset

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func testRecord(identityID uuid.UUID, key string) models.PublicationRecord {
	return models.PublicationRecord{
		IdentityID:  identityID,
		NaturalKey:  key,
		FirstSeenAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Payload: models.PublicationPayload{
			CaseNumber:  "0001234-56.2026.8.26.0100",
			Court:       "TJSP",
			PublishedAt: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
			Content:     "Intimação da parte autora.",
		},
	}
}

func (s *InMemoryStoreSuite) TestCommitNewEmitsPairedEvent() {
	identityID := uuid.New()
	record := testRecord(identityID, "p1")

	event, err := s.store.CommitNew(context.Background(), record)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), identityID, event.IdentityID)
	assert.Equal(s.T(), "p1", event.NaturalKey)
	assert.Equal(s.T(), record.FirstSeenAt, event.EmittedAt)
	assert.Nil(s.T(), event.DeliveredAt)

	seen, err := s.store.Seen(context.Background(), identityID, "p1")
	require.NoError(s.T(), err)
	assert.True(s.T(), seen)
}

func (s *InMemoryStoreSuite) TestCommitNewConflictOnSecondCommit() {
	identityID := uuid.New()
	record := testRecord(identityID, "p1")

	_, err := s.store.CommitNew(context.Background(), record)
	require.NoError(s.T(), err)

	_, err = s.store.CommitNew(context.Background(), record)
	assert.ErrorIs(s.T(), err, sentinel.ErrConflict)

	// The conflict did not duplicate anything.
	assert.Equal(s.T(), 1, s.store.RecordCount())
	assert.Equal(s.T(), 1, s.store.EventCount())
}

func (s *InMemoryStoreSuite) TestSameKeyDifferentIdentitiesAreIndependent() {
	record := testRecord(uuid.New(), "p1")
	other := testRecord(uuid.New(), "p1")

	_, err := s.store.CommitNew(context.Background(), record)
	require.NoError(s.T(), err)
	_, err = s.store.CommitNew(context.Background(), other)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 2, s.store.RecordCount())
}

func (s *InMemoryStoreSuite) TestFindRecordNotFound() {
	_, err := s.store.FindRecord(context.Background(), uuid.New(), "missing")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestPendingEventsOldestFirstAndAck() {
	identityID := uuid.New()
	first := testRecord(identityID, "p1")
	second := testRecord(identityID, "p2")
	second.FirstSeenAt = first.FirstSeenAt.Add(time.Minute)

	_, err := s.store.CommitNew(context.Background(), second)
	require.NoError(s.T(), err)
	_, err = s.store.CommitNew(context.Background(), first)
	require.NoError(s.T(), err)

	pending, err := s.store.PendingEvents(context.Background(), 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 2)
	assert.Equal(s.T(), "p1", pending[0].NaturalKey)
	assert.Equal(s.T(), "p2", pending[1].NaturalKey)

	err = s.store.MarkDelivered(context.Background(), identityID, "p1", time.Now())
	require.NoError(s.T(), err)

	pending, err = s.store.PendingEvents(context.Background(), 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 1)
	assert.Equal(s.T(), "p2", pending[0].NaturalKey)
}

func (s *InMemoryStoreSuite) TestMarkDeliveredUnknownEvent() {
	err := s.store.MarkDelivered(context.Background(), uuid.New(), "missing", time.Now())
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}
