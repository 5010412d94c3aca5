package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/shinelocal/spotlight/internal/domain"
)

// MemoryInvoiceRepository implements InvoiceRepository in memory for tests.
type MemoryInvoiceRepository struct {
	mu          sync.RWMutex
	byInvoiceID map[string]*domain.Invoice
}

func NewMemoryInvoiceRepository() *MemoryInvoiceRepository {
	return &MemoryInvoiceRepository{byInvoiceID: make(map[string]*domain.Invoice)}
}

func (r *MemoryInvoiceRepository) UpsertByStripeInvoiceID(ctx context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	if existing, ok := r.byInvoiceID[inv.StripeInvoiceID]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	r.byInvoiceID[inv.StripeInvoiceID] = &cp
	return nil
}

func (r *MemoryInvoiceRepository) GetByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.byInvoiceID[stripeInvoiceID]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *MemoryInvoiceRepository) ListBySponsorshipID(ctx context.Context, sponsorshipID string) ([]*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Invoice
	for _, inv := range r.byInvoiceID {
		if inv.SponsorshipID == sponsorshipID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
