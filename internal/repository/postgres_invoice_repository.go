package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/pkg/database"
)

// PostgresInvoiceRepository implements InvoiceRepository using PostgreSQL.
type PostgresInvoiceRepository struct {
	db *database.PostgresDB
}

// NewPostgresInvoiceRepository creates a new PostgreSQL invoice repository
func NewPostgresInvoiceRepository(db *database.PostgresDB) *PostgresInvoiceRepository {
	return &PostgresInvoiceRepository{db: db}
}

const invoiceColumns = `
	id, sponsorship_id, business_id, status, amount_due, currency,
	period_start, period_end, stripe_invoice_id, hosted_invoice_url,
	invoice_pdf, created_at, updated_at
`

// UpsertByStripeInvoiceID creates or updates the record for an external
// invoice. Re-processing the same invoice event updates in place.
func (r *PostgresInvoiceRepository) UpsertByStripeInvoiceID(ctx context.Context, inv *domain.Invoice) error {
	query := `
		INSERT INTO sponsorship_invoices (
			id, sponsorship_id, business_id, status, amount_due, currency,
			period_start, period_end, stripe_invoice_id, hosted_invoice_url,
			invoice_pdf, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (stripe_invoice_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_due = EXCLUDED.amount_due,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			hosted_invoice_url = EXCLUDED.hosted_invoice_url,
			invoice_pdf = EXCLUDED.invoice_pdf,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Pool().Exec(ctx, query,
		inv.ID,
		inv.SponsorshipID,
		inv.BusinessID,
		string(inv.Status),
		inv.AmountDue,
		inv.Currency,
		inv.PeriodStart,
		inv.PeriodEnd,
		inv.StripeInvoiceID,
		nullString(inv.HostedInvoiceURL),
		nullString(inv.InvoicePDF),
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert invoice: %w", err)
	}
	return nil
}

// GetByStripeInvoiceID retrieves an invoice by external invoice ID.
func (r *PostgresInvoiceRepository) GetByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM sponsorship_invoices WHERE stripe_invoice_id = $1`
	return r.scanInvoice(r.db.Pool().QueryRow(ctx, query, stripeInvoiceID))
}

// ListBySponsorshipID lists all invoices for a sponsorship, newest first.
func (r *PostgresInvoiceRepository) ListBySponsorshipID(ctx context.Context, sponsorshipID string) ([]*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM sponsorship_invoices WHERE sponsorship_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, sponsorshipID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return out, nil
}

func (r *PostgresInvoiceRepository) scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var status string
	var hostedURL, pdf *string

	err := row.Scan(
		&inv.ID,
		&inv.SponsorshipID,
		&inv.BusinessID,
		&status,
		&inv.AmountDue,
		&inv.Currency,
		&inv.PeriodStart,
		&inv.PeriodEnd,
		&inv.StripeInvoiceID,
		&hostedURL,
		&pdf,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}

	inv.Status = domain.InvoiceStatus(status)
	if hostedURL != nil {
		inv.HostedInvoiceURL = *hostedURL
	}
	if pdf != nil {
		inv.InvoicePDF = *pdf
	}
	return &inv, nil
}
