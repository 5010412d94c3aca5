package repository

import (
	"context"
	"sync"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/geo"
)

// MemoryAreaRepository implements AreaRepository in memory for tests.
type MemoryAreaRepository struct {
	mu    sync.RWMutex
	areas map[string]*domain.Area
}

func NewMemoryAreaRepository() *MemoryAreaRepository {
	return &MemoryAreaRepository{areas: make(map[string]*domain.Area)}
}

// Put stores an area, deriving AreaKm2 from its geometry when unset.
func (r *MemoryAreaRepository) Put(area *domain.Area) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *area
	if cp.AreaKm2 == 0 {
		if mp, ok := geo.NormalizeString(cp.GeoJSON); ok {
			cp.AreaKm2 = geo.AreaKm2(mp)
		}
	}
	r.areas[cp.ID] = &cp
}

func (r *MemoryAreaRepository) GetByID(ctx context.Context, id string) (*domain.Area, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.areas[id]
	if !ok {
		return nil, domain.ErrAreaNotFound
	}
	cp := *a
	return &cp, nil
}
