package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/pkg/database"
)

// PostgresAreaRepository implements AreaRepository over the service_areas table.
type PostgresAreaRepository struct {
	db *database.PostgresDB
}

// NewPostgresAreaRepository creates a new PostgreSQL area repository
func NewPostgresAreaRepository(db *database.PostgresDB) *PostgresAreaRepository {
	return &PostgresAreaRepository{db: db}
}

// GetByID retrieves a service area and its boundary as GeoJSON.
func (r *PostgresAreaRepository) GetByID(ctx context.Context, id string) (*domain.Area, error) {
	query := `
		SELECT id, name, ST_AsGeoJSON(geom),
		       ST_Area(geom::geography) / 1000000.0,
		       created_at
		FROM service_areas
		WHERE id = $1`

	var a domain.Area
	var geojson *string
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &geojson, &a.AreaKm2, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAreaNotFound
		}
		return nil, fmt.Errorf("failed to query service area: %w", err)
	}
	if geojson != nil {
		a.GeoJSON = *geojson
	}
	return &a, nil
}
