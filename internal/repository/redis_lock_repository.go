package repository

import (
	_ "embed"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shinelocal/spotlight/internal/domain"
	pkgredis "github.com/shinelocal/spotlight/pkg/redis"
)

//go:embed scripts/acquire_area_lock.lua
var acquireAreaLockScript string

//go:embed scripts/release_area_lock.lua
var releaseAreaLockScript string

const (
	scriptAcquireAreaLock = "acquire_area_lock"
	scriptReleaseAreaLock = "release_area_lock"
)

// RedisLockRepository implements LockRepository using Redis. Acquire and
// release are single Lua scripts so check-and-set is atomic; TTL expiry keeps
// a crashed checkout from blocking a region forever.
type RedisLockRepository struct {
	client *pkgredis.Client
}

// NewRedisLockRepository creates a new RedisLockRepository
func NewRedisLockRepository(client *pkgredis.Client) *RedisLockRepository {
	return &RedisLockRepository{client: client}
}

// LoadScripts loads the lock Lua scripts into Redis.
func (r *RedisLockRepository) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptAcquireAreaLock: acquireAreaLockScript,
		scriptReleaseAreaLock: releaseAreaLockScript,
	}
	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// Acquire takes the checkout lock for (area, category, slot). A second
// acquire by the same business refreshes the TTL; anyone else gets
// domain.ErrLockHeld.
func (r *RedisLockRepository) Acquire(ctx context.Context, areaID, categoryID string, slot int, businessID string, ttl time.Duration) (*domain.AreaLock, error) {
	lockID := uuid.New().String()
	tupleKey := fmt.Sprintf("sponsorlock:%s:%s:%d", areaID, categoryID, slot)

	keys := []string{tupleKey}
	args := []interface{}{lockID, businessID, ttl.Milliseconds()}

	result := r.client.EvalWithFallback(ctx, scriptAcquireAreaLock, acquireAreaLockScript, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute acquire_area_lock script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success != 1 {
		holder, _ := values[1].(string)
		return nil, &domain.LockHeldError{HolderBusinessID: holder}
	}

	grantedID, _ := values[1].(string)
	now := time.Now().UTC()
	return &domain.AreaLock{
		ID:         grantedID,
		AreaID:     areaID,
		CategoryID: categoryID,
		Slot:       slot,
		BusinessID: businessID,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}, nil
}

// Release frees the lock if lockID still owns it. Expired locks are a no-op.
func (r *RedisLockRepository) Release(ctx context.Context, lockID string) error {
	if lockID == "" {
		return nil
	}
	metaKey := fmt.Sprintf("sponsorlock:meta:%s", lockID)

	result := r.client.EvalWithFallback(ctx, scriptReleaseAreaLock, releaseAreaLockScript, []string{metaKey}, lockID)
	if result.Err() != nil {
		return fmt.Errorf("failed to execute release_area_lock script: %w", result.Err())
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
