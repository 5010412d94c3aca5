package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus mirrors the billing provider's invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusFinalized     InvoiceStatus = "finalized"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusPaymentFailed InvoiceStatus = "payment_failed"
	InvoiceStatusVoided        InvoiceStatus = "voided"
)

// Invoice is one billing-cycle record for a sponsorship. Its lifecycle is
// independent of the sponsorship: it persists after cancellation.
type Invoice struct {
	ID            string        `json:"id"`
	SponsorshipID string        `json:"sponsorship_id"`
	BusinessID    string        `json:"business_id"`
	Status        InvoiceStatus `json:"status"`
	AmountDue     float64       `json:"amount_due"`
	Currency      string        `json:"currency"`
	PeriodStart   *time.Time    `json:"period_start,omitempty"`
	PeriodEnd     *time.Time    `json:"period_end,omitempty"`

	StripeInvoiceID  string `json:"stripe_invoice_id"`
	HostedInvoiceURL string `json:"hosted_invoice_url,omitempty"`
	InvoicePDF       string `json:"invoice_pdf,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInvoice creates an invoice linked to a sponsorship.
func NewInvoice(sponsorshipID, businessID, stripeInvoiceID string, amountDue float64, currency string, status InvoiceStatus) *Invoice {
	now := time.Now().UTC()
	return &Invoice{
		ID:              uuid.New().String(),
		SponsorshipID:   sponsorshipID,
		BusinessID:      businessID,
		Status:          status,
		AmountDue:       amountDue,
		Currency:        currency,
		StripeInvoiceID: stripeInvoiceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
