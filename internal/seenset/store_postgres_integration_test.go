//go:build integration

package seenset_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"diario/internal/monitor/models"
	"diario/internal/seenset"
	"diario/pkg/platform/sentinel"
	"diario/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *seenset.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = seenset.NewPostgresStore(s.pg.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.pg.TruncateAll(context.Background(), "publication_events", "publication_records")
	s.Require().NoError(err)
}

func makeRecord(identityID uuid.UUID, key string) models.PublicationRecord {
	return models.PublicationRecord{
		IdentityID:  identityID,
		NaturalKey:  key,
		FirstSeenAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Payload: models.PublicationPayload{
			CaseNumber:  "0001234-56.2026.8.26.0100",
			Court:       "TJSP",
			CourtBody:   "3ª Vara Cível",
			PublishedAt: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
			Content:     "Intimação da parte autora.",
			Priority:    models.PriorityMedium,
			Keywords:    []string{"intimação"},
			Summary:     "Intimação da parte autora",
		},
	}
}

func (s *PostgresStoreSuite) TestCommitNewRoundTrip() {
	ctx := context.Background()
	identityID := uuid.New()
	record := makeRecord(identityID, "p1")

	event, err := s.store.CommitNew(ctx, record)
	s.Require().NoError(err)
	s.Equal("p1", event.NaturalKey)
	s.Nil(event.DeliveredAt)

	seen, err := s.store.Seen(ctx, identityID, "p1")
	s.Require().NoError(err)
	s.True(seen)

	found, err := s.store.FindRecord(ctx, identityID, "p1")
	s.Require().NoError(err)
	s.Equal(record.Payload.CaseNumber, found.Payload.CaseNumber)
	s.Equal(record.Payload.Keywords, found.Payload.Keywords)
	s.Equal(record.Payload.Priority, found.Payload.Priority)
}

func (s *PostgresStoreSuite) TestCommitNewConflict() {
	ctx := context.Background()
	record := makeRecord(uuid.New(), "p1")

	_, err := s.store.CommitNew(ctx, record)
	s.Require().NoError(err)

	_, err = s.store.CommitNew(ctx, record)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestConcurrentCommitsExactlyOneWins() {
	ctx := context.Background()
	record := makeRecord(uuid.New(), "p1")

	const goroutines = 10
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.CommitNew(ctx, record)
			switch {
			case err == nil:
				wins.Add(1)
			default:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestPendingEventsLifecycle() {
	ctx := context.Background()
	identityID := uuid.New()

	first := makeRecord(identityID, "p1")
	second := makeRecord(identityID, "p2")
	second.FirstSeenAt = first.FirstSeenAt.Add(time.Minute)

	_, err := s.store.CommitNew(ctx, second)
	s.Require().NoError(err)
	_, err = s.store.CommitNew(ctx, first)
	s.Require().NoError(err)

	pending, err := s.store.PendingEvents(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("p1", pending[0].NaturalKey)
	s.Equal("p2", pending[1].NaturalKey)

	err = s.store.MarkDelivered(ctx, identityID, "p1", time.Now().UTC())
	s.Require().NoError(err)

	pending, err = s.store.PendingEvents(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("p2", pending[0].NaturalKey)
}

func (s *PostgresStoreSuite) TestPendingEventsNonPositiveLimitIsUnbounded() {
	ctx := context.Background()
	identityID := uuid.New()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		record := makeRecord(identityID, string(rune('a'+i)))
		record.FirstSeenAt = base.Add(time.Duration(i) * time.Minute)
		_, err := s.store.CommitNew(ctx, record)
		s.Require().NoError(err)
	}

	pending, err := s.store.PendingEvents(ctx, 0)
	s.Require().NoError(err)
	s.Len(pending, 5)

	pending, err = s.store.PendingEvents(ctx, 2)
	s.Require().NoError(err)
	s.Len(pending, 2)
}

func (s *PostgresStoreSuite) TestMarkDeliveredUnknownEvent() {
	err := s.store.MarkDelivered(context.Background(), uuid.New(), "missing", time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindRecordNotFound() {
	_, err := s.store.FindRecord(context.Background(), uuid.New(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
