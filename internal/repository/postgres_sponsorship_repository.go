package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/pkg/database"
)

// PostgreSQL error codes
const (
	pgUniqueViolationCode    = "23505"
	pgExclusionViolationCode = "23P01"
)

// Constraint names from migrations; used to tell a duplicate-business
// rejection apart from a geometry-overlap rejection.
const (
	constraintOneActivePerBusiness = "sponsorships_one_active_per_business"
	constraintNoGeomOverlap        = "sponsorships_no_geom_overlap"
)

// PostgresSponsorshipRepository implements SponsorshipRepository using
// PostgreSQL + PostGIS. The overlap and single-owner checks live in database
// constraints so two concurrent confirmation events can never both win.
type PostgresSponsorshipRepository struct {
	db *database.PostgresDB
}

// NewPostgresSponsorshipRepository creates a new PostgreSQL sponsorship repository
func NewPostgresSponsorshipRepository(db *database.PostgresDB) *PostgresSponsorshipRepository {
	return &PostgresSponsorshipRepository{db: db}
}

const sponsorshipColumns = `
	id, business_id, area_id, category_id, slot, status,
	ST_AsGeoJSON(geom), area_km2, monthly_price, currency,
	stripe_subscription_id, stripe_customer_id,
	current_period_end, cancel_at_period_end, created_at, updated_at
`

// Upsert writes the sponsorship keyed by stripe_subscription_id. Constraint
// violations are mapped to domain sentinels; the caller treats them as a hard
// signal to cancel the billing subscription.
func (r *PostgresSponsorshipRepository) Upsert(ctx context.Context, s *domain.Sponsorship) error {
	query := `
		INSERT INTO sponsorships (
			id, business_id, area_id, category_id, slot, status,
			geom, area_km2, monthly_price, currency,
			stripe_subscription_id, stripe_customer_id,
			current_period_end, cancel_at_period_end, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			ST_Multi(ST_GeomFromGeoJSON($7)), $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			status = EXCLUDED.status,
			geom = EXCLUDED.geom,
			area_km2 = EXCLUDED.area_km2,
			monthly_price = EXCLUDED.monthly_price,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Pool().Exec(ctx, query,
		s.ID,
		s.BusinessID,
		s.AreaID,
		s.CategoryID,
		s.Slot,
		string(s.Status),
		s.GeoJSON,
		s.AreaKm2,
		s.MonthlyPrice,
		s.Currency,
		s.StripeSubscriptionID,
		nullString(s.StripeCustomerID),
		s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgExclusionViolationCode:
			return domain.ErrOverlapConflict
		case pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintOneActivePerBusiness:
			return domain.ErrDuplicateSponsorship
		case pgErr.Code == pgUniqueViolationCode:
			return domain.ErrOverlapConflict
		}
	}
	return fmt.Errorf("failed to write sponsorship: %w", err)
}

// GetByStripeSubscriptionID retrieves a sponsorship by external subscription ID.
func (r *PostgresSponsorshipRepository) GetByStripeSubscriptionID(ctx context.Context, subID string) (*domain.Sponsorship, error) {
	query := `SELECT ` + sponsorshipColumns + ` FROM sponsorships WHERE stripe_subscription_id = $1`
	return r.scanSponsorship(r.db.Pool().QueryRow(ctx, query, subID))
}

// GetActiveLike retrieves the business's live claim for (area, category, slot), if any.
func (r *PostgresSponsorshipRepository) GetActiveLike(ctx context.Context, businessID, areaID, categoryID string, slot int) (*domain.Sponsorship, error) {
	query := `SELECT ` + sponsorshipColumns + `
		FROM sponsorships
		WHERE business_id = $1 AND area_id = $2 AND category_id = $3 AND slot = $4
		  AND status = ANY($5)
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanSponsorship(r.db.Pool().QueryRow(ctx, query, businessID, areaID, categoryID, slot, activeLikeStrings()))
}

// ListBlocking lists all live claims for (area, category, slot).
func (r *PostgresSponsorshipRepository) ListBlocking(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) ([]*domain.Sponsorship, error) {
	query := `SELECT ` + sponsorshipColumns + `
		FROM sponsorships
		WHERE area_id = $1 AND category_id = $2 AND slot = $3
		  AND status = ANY($4)
		  AND ($5 = '' OR business_id <> $5)
		ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, areaID, categoryID, slot, activeLikeStrings(), excludeBusinessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocking sponsorships: %w", err)
	}
	defer rows.Close()

	var out []*domain.Sponsorship
	for rows.Next() {
		s, err := r.scanSponsorship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sponsorships: %w", err)
	}
	return out, nil
}

// ListByArea lists all live claims in an area across categories and slots.
func (r *PostgresSponsorshipRepository) ListByArea(ctx context.Context, areaID string) ([]*domain.Sponsorship, error) {
	query := `SELECT ` + sponsorshipColumns + `
		FROM sponsorships
		WHERE area_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, areaID, activeLikeStrings())
	if err != nil {
		return nil, fmt.Errorf("failed to query area sponsorships: %w", err)
	}
	defer rows.Close()

	var out []*domain.Sponsorship
	for rows.Next() {
		s, err := r.scanSponsorship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sponsorships: %w", err)
	}
	return out, nil
}

// RemainingArea calls the server-side PostGIS function so the authoritative
// geometry computation stays next to the data.
func (r *PostgresSponsorshipRepository) RemainingArea(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) (string, float64, error) {
	query := `SELECT geom_json, area_km2 FROM sponsorship_remaining_area($1, $2, $3, $4)`

	var geojson *string
	var areaKm2 float64
	err := r.db.Pool().QueryRow(ctx, query, areaID, categoryID, slot, nullString(excludeBusinessID)).Scan(&geojson, &areaKm2)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, domain.ErrAreaNotFound
		}
		return "", 0, fmt.Errorf("failed to compute remaining area: %w", err)
	}
	if geojson == nil {
		return "", 0, nil
	}
	return *geojson, areaKm2, nil
}

// Update persists mutated fields by sponsorship ID.
func (r *PostgresSponsorshipRepository) Update(ctx context.Context, s *domain.Sponsorship) error {
	query := `
		UPDATE sponsorships
		SET status = $2,
		    geom = ST_Multi(ST_GeomFromGeoJSON($3)),
		    area_km2 = $4,
		    monthly_price = $5,
		    stripe_subscription_id = $6,
		    stripe_customer_id = $7,
		    current_period_end = $8,
		    cancel_at_period_end = $9,
		    updated_at = $10
		WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query,
		s.ID,
		string(s.Status),
		s.GeoJSON,
		s.AreaKm2,
		s.MonthlyPrice,
		s.StripeSubscriptionID,
		nullString(s.StripeCustomerID),
		s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd,
		s.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSponsorshipNotFound
	}
	return nil
}

// GetStripeCustomerID returns the stored billing customer for a business.
func (r *PostgresSponsorshipRepository) GetStripeCustomerID(ctx context.Context, businessID string) (string, error) {
	var customerID *string
	err := r.db.Pool().QueryRow(ctx,
		`SELECT stripe_customer_id FROM businesses WHERE id = $1`, businessID,
	).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query stripe customer: %w", err)
	}
	if customerID == nil {
		return "", nil
	}
	return *customerID, nil
}

// SaveStripeCustomerID stores the billing customer id for a business.
func (r *PostgresSponsorshipRepository) SaveStripeCustomerID(ctx context.Context, businessID, customerID string) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE businesses SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		businessID, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to save stripe customer: %w", err)
	}
	return nil
}

func (r *PostgresSponsorshipRepository) scanSponsorship(row pgx.Row) (*domain.Sponsorship, error) {
	var s domain.Sponsorship
	var status string
	var geojson, stripeCustomerID *string

	err := row.Scan(
		&s.ID,
		&s.BusinessID,
		&s.AreaID,
		&s.CategoryID,
		&s.Slot,
		&status,
		&geojson,
		&s.AreaKm2,
		&s.MonthlyPrice,
		&s.Currency,
		&s.StripeSubscriptionID,
		&stripeCustomerID,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSponsorshipNotFound
		}
		return nil, fmt.Errorf("failed to scan sponsorship: %w", err)
	}

	s.Status = domain.SponsorshipStatus(status)
	if geojson != nil {
		s.GeoJSON = *geojson
	}
	if stripeCustomerID != nil {
		s.StripeCustomerID = *stripeCustomerID
	}
	return &s, nil
}

// nullString returns nil if string is empty, otherwise returns pointer to string
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func activeLikeStrings() []string {
	out := make([]string, len(domain.ActiveLikeStatuses))
	for i, st := range domain.ActiveLikeStatuses {
		out[i] = string(st)
	}
	return out
}
