package domain

import "time"

// Area is a named service-area boundary drawn by a business during setup.
// Immutable once referenced by a sponsorship.
type Area struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GeoJSON string `json:"geojson"` // Polygon or MultiPolygon, SRID 4326
	AreaKm2 float64 `json:"area_km2"`

	CreatedAt time.Time `json:"created_at"`
}

// Category is an industry/service classification ("bin cleaning",
// "window cleaning"). Sponsorship exclusivity is scoped per category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// SlotFeatured is the single placement tier currently sold.
const SlotFeatured = 1
