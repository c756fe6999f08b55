// Package lease provides per-identity run leases: time-bounded exclusivity
// tokens that guarantee at most one worker runs an identity at a time. A
// crashed worker's lease is never cleaned up explicitly; it expires, and the
// next scheduler tick reclaims the identity.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"

	"diario/internal/monitor/models"
)

// Store implements the atomic "acquire if absent or expired" primitive.
type Store interface {
	// Acquire grants a lease for the identity to the given owner, failing
	// with sentinel.ErrLeaseHeld (possibly wrapped) when a non-expired
	// lease exists for another owner. Contention is not an error condition
	// for callers; it is an expected scheduling outcome.
	Acquire(ctx context.Context, identityID, owner uuid.UUID, ttl time.Duration) (models.RunLease, error)

	// Release destroys the lease if the owner still holds it. Releasing a
	// lease that expired and was reclaimed by someone else is a no-op.
	Release(ctx context.Context, identityID, owner uuid.UUID) error
}
