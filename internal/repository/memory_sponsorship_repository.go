package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/geo"
)

// MemorySponsorshipRepository implements SponsorshipRepository in memory.
// It enforces the same overlap and single-owner rules as the database
// constraints, computed through internal/geo, so service tests exercise the
// real rejection paths. Not for production use.
type MemorySponsorshipRepository struct {
	mu        sync.RWMutex
	bySubID   map[string]*domain.Sponsorship
	customers map[string]string
	areas     *MemoryAreaRepository
}

// NewMemorySponsorshipRepository creates an in-memory ledger backed by the
// given area repository (needed for remaining-area computation).
func NewMemorySponsorshipRepository(areas *MemoryAreaRepository) *MemorySponsorshipRepository {
	return &MemorySponsorshipRepository{
		bySubID:   make(map[string]*domain.Sponsorship),
		customers: make(map[string]string),
		areas:     areas,
	}
}

// Upsert writes keyed by stripe subscription ID with the overlap check.
func (r *MemorySponsorshipRepository) Upsert(ctx context.Context, s *domain.Sponsorship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.Status.IsActiveLike() {
		cp := *s
		r.bySubID[s.StripeSubscriptionID] = &cp
		return nil
	}

	candidate, ok := geo.NormalizeString(s.GeoJSON)
	if !ok {
		return domain.ErrOverlapConflict
	}

	for _, other := range r.bySubID {
		if other.StripeSubscriptionID == s.StripeSubscriptionID {
			continue
		}
		if !other.Status.IsActiveLike() {
			continue
		}
		if other.AreaID != s.AreaID || other.CategoryID != s.CategoryID || other.Slot != s.Slot {
			continue
		}
		if other.BusinessID == s.BusinessID {
			return domain.ErrDuplicateSponsorship
		}
		existing, ok := geo.NormalizeString(other.GeoJSON)
		if !ok {
			// Unparseable competitor geometry blocks everything. Fail closed.
			return domain.ErrOverlapConflict
		}
		if geo.Overlaps(candidate, existing) {
			return domain.ErrOverlapConflict
		}
	}

	cp := *s
	r.bySubID[s.StripeSubscriptionID] = &cp
	return nil
}

func (r *MemorySponsorshipRepository) GetByStripeSubscriptionID(ctx context.Context, subID string) (*domain.Sponsorship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bySubID[subID]
	if !ok {
		return nil, domain.ErrSponsorshipNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySponsorshipRepository) GetActiveLike(ctx context.Context, businessID, areaID, categoryID string, slot int) (*domain.Sponsorship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.bySubID {
		if s.BusinessID == businessID && s.AreaID == areaID && s.CategoryID == categoryID &&
			s.Slot == slot && s.Status.IsActiveLike() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrSponsorshipNotFound
}

func (r *MemorySponsorshipRepository) ListBlocking(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) ([]*domain.Sponsorship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Sponsorship
	for _, s := range r.bySubID {
		if s.AreaID != areaID || s.CategoryID != categoryID || s.Slot != slot {
			continue
		}
		if !s.Status.IsActiveLike() {
			continue
		}
		if excludeBusinessID != "" && s.BusinessID == excludeBusinessID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// ListByArea lists all active-like sponsorships of an area, newest first.
func (r *MemorySponsorshipRepository) ListByArea(ctx context.Context, areaID string) ([]*domain.Sponsorship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Sponsorship
	for _, s := range r.bySubID {
		if s.AreaID == areaID && s.Status.IsActiveLike() {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RemainingArea computes area \ union(blockers) through internal/geo. This is
// the reference implementation of the server-side SQL function.
func (r *MemorySponsorshipRepository) RemainingArea(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) (string, float64, error) {
	area, err := r.areas.GetByID(ctx, areaID)
	if err != nil {
		return "", 0, err
	}

	full, ok := geo.NormalizeString(area.GeoJSON)
	if !ok {
		return "", 0, nil
	}

	blockers, err := r.ListBlocking(ctx, areaID, categoryID, slot, excludeBusinessID)
	if err != nil {
		return "", 0, err
	}

	taken := geo.Empty()
	for _, b := range blockers {
		g, ok := geo.NormalizeString(b.GeoJSON)
		if !ok {
			// A blocker we cannot parse claims everything. Fail closed.
			return "", 0, nil
		}
		taken = geo.Union(taken, g)
	}

	remaining := geo.Difference(full, taken)
	km2 := geo.AreaKm2(remaining)
	if km2 <= geo.EpsilonKm2 {
		return "", 0, nil
	}
	gj, err := geo.MarshalGeoJSON(remaining)
	if err != nil {
		return "", 0, nil
	}
	return gj, km2, nil
}

func (r *MemorySponsorshipRepository) Update(ctx context.Context, s *domain.Sponsorship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subID, existing := range r.bySubID {
		if existing.ID == s.ID {
			cp := *s
			if s.StripeSubscriptionID != subID {
				delete(r.bySubID, subID)
			}
			r.bySubID[s.StripeSubscriptionID] = &cp
			return nil
		}
	}
	return domain.ErrSponsorshipNotFound
}

func (r *MemorySponsorshipRepository) GetStripeCustomerID(ctx context.Context, businessID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.customers[businessID], nil
}

func (r *MemorySponsorshipRepository) SaveStripeCustomerID(ctx context.Context, businessID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[businessID] = customerID
	return nil
}
