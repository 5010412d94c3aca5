package repository

import (
	"context"
	"time"

	"github.com/shinelocal/spotlight/internal/domain"
)

// LockRepository manages short-lived advisory locks on (area, category, slot).
// A lock narrows the window between the availability check and checkout
// creation; it is not the correctness guarantee (the ledger constraint is).
type LockRepository interface {
	// Acquire takes the lock for the tuple on behalf of a business. Returns
	// domain.ErrLockHeld when a different holder has it. Re-acquiring for the
	// same business refreshes the TTL and returns the existing lock.
	Acquire(ctx context.Context, areaID, categoryID string, slot int, businessID string, ttl time.Duration) (*domain.AreaLock, error)

	// Release frees the lock if (and only if) lockID still owns it. Releasing
	// an expired or unknown lock is a no-op.
	Release(ctx context.Context, lockID string) error
}
