package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"diario/internal/monitor/models"
	"diario/pkg/platform/sentinel"
)

const leaseKeyPrefix = "lease:identity:"

// releaseScript deletes the lease only when the caller still owns it, so a
// slow worker can never release a lease that expired and was reclaimed.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisStore implements leasing on Redis SET NX PX. This is the
// recommended store for multi-instance deployments where the scheduler
// fleet shares lease state.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisClock injects a deterministic clock for tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Acquire(ctx context.Context, identityID, owner uuid.UUID, ttl time.Duration) (models.RunLease, error) {
	now := s.now()
	ok, err := s.client.SetNX(ctx, leaseKeyPrefix+identityID.String(), owner.String(), ttl).Result()
	if err != nil {
		return models.RunLease{}, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return models.RunLease{}, fmt.Errorf("identity %s: %w", identityID, sentinel.ErrLeaseHeld)
	}
	return models.RunLease{
		IdentityID: identityID,
		OwnerToken: owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

func (s *RedisStore) Release(ctx context.Context, identityID, owner uuid.UUID) error {
	err := releaseScript.Run(ctx, s.client,
		[]string{leaseKeyPrefix + identityID.String()}, owner.String()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
