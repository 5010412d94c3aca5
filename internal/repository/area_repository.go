package repository

import (
	"context"

	"github.com/shinelocal/spotlight/internal/domain"
)

// AreaRepository reads named service-area boundaries. Area creation happens
// in the profile/onboarding flow, outside this service.
type AreaRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Area, error)
}

// InvoiceRepository persists billing-cycle records keyed by the external
// invoice ID. Invoices outlive their sponsorship.
type InvoiceRepository interface {
	// UpsertByStripeInvoiceID creates or updates an invoice record.
	UpsertByStripeInvoiceID(ctx context.Context, inv *domain.Invoice) error

	GetByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*domain.Invoice, error)

	ListBySponsorshipID(ctx context.Context, sponsorshipID string) ([]*domain.Invoice, error)
}
