package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shinelocal/spotlight/internal/domain"
)

// MemoryLockRepository implements LockRepository in memory for tests.
type MemoryLockRepository struct {
	mu      sync.Mutex
	byTuple map[string]*domain.AreaLock
	byID    map[string]string
	now     func() time.Time
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{
		byTuple: make(map[string]*domain.AreaLock),
		byID:    make(map[string]string),
		now:     time.Now,
	}
}

func lockTupleKey(areaID, categoryID string, slot int) string {
	return fmt.Sprintf("%s:%s:%d", areaID, categoryID, slot)
}

func (r *MemoryLockRepository) Acquire(ctx context.Context, areaID, categoryID string, slot int, businessID string, ttl time.Duration) (*domain.AreaLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lockTupleKey(areaID, categoryID, slot)
	now := r.now()

	if held, ok := r.byTuple[key]; ok && held.ExpiresAt.After(now) {
		if held.BusinessID != businessID {
			return nil, &domain.LockHeldError{HolderBusinessID: held.BusinessID}
		}
		held.ExpiresAt = now.Add(ttl)
		cp := *held
		return &cp, nil
	}

	lock := &domain.AreaLock{
		ID:         uuid.New().String(),
		AreaID:     areaID,
		CategoryID: categoryID,
		Slot:       slot,
		BusinessID: businessID,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	r.byTuple[key] = lock
	r.byID[lock.ID] = key
	cp := *lock
	return &cp, nil
}

func (r *MemoryLockRepository) Release(ctx context.Context, lockID string) error {
	if lockID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[lockID]
	if !ok {
		return nil
	}
	delete(r.byID, lockID)
	if held, ok := r.byTuple[key]; ok && held.ID == lockID {
		delete(r.byTuple, key)
	}
	return nil
}
