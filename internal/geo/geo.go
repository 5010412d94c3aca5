// Package geo provides the pure geometry operations behind sponsored-area
// availability: normalization of drawn polygons, union/difference of claims,
// and spherical area measurement. All geometries are GeoJSON Polygon or
// MultiPolygon in SRID 4326 (WGS84 degrees).
//
// The failure policy is deliberate and asymmetric: Union fails conservative
// (blockers are never under-counted) and Difference fails closed (remaining
// area is never over-granted). A geometry bug must never let a business buy
// area it does not have exclusive rights to.
package geo

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/peterstace/simplefeatures/geom"
)

// EpsilonKm2 is the threshold below which a remaining area counts as sold out.
const EpsilonKm2 = 1e-6

var errEmptyGeometry = errors.New("empty geometry")

// Normalize parses a GeoJSON Polygon, MultiPolygon or FeatureCollection of
// such into a single MultiPolygon. Multi-feature inputs are unioned.
// Degenerate rings are repaired best-effort; if repair fails the input is
// treated as empty (ok=false) rather than surfacing an error.
func Normalize(raw []byte) (geom.MultiPolygon, bool) {
	if len(raw) == 0 {
		return geom.MultiPolygon{}, false
	}

	gs, err := parseGeometries(raw)
	if err != nil || len(gs) == 0 {
		return geom.MultiPolygon{}, false
	}

	acc := geom.MultiPolygon{}.AsGeometry()
	for _, g := range gs {
		mp, ok := toMultiPolygon(g)
		if !ok {
			continue
		}
		merged, err := geom.Union(acc, mp.AsGeometry())
		if err != nil {
			return geom.MultiPolygon{}, false
		}
		acc = merged
	}

	mp, ok := toMultiPolygon(acc)
	if !ok || mp.IsEmpty() {
		return geom.MultiPolygon{}, false
	}
	return mp, true
}

// NormalizeString is Normalize over a raw GeoJSON string.
func NormalizeString(s string) (geom.MultiPolygon, bool) {
	return Normalize([]byte(s))
}

// Empty returns the empty multipolygon, the identity element for Union.
func Empty() geom.MultiPolygon {
	return geom.MultiPolygon{}
}

// Union returns a ∪ b. On internal failure the fallback is conservative:
// both inputs are kept side by side as one MultiPolygon so downstream
// difference computations still subtract everything.
func Union(a, b geom.MultiPolygon) geom.MultiPolygon {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	out, err := geom.Union(a.AsGeometry(), b.AsGeometry())
	if err != nil {
		return concat(a, b)
	}
	mp, ok := toMultiPolygon(out)
	if !ok {
		return concat(a, b)
	}
	return mp
}

// Difference returns a \ b. On internal failure the fallback is EMPTY, never
// the unclipped original: a geometry error must read as "nothing left to buy".
func Difference(a, b geom.MultiPolygon) geom.MultiPolygon {
	if a.IsEmpty() {
		return geom.MultiPolygon{}
	}
	if b.IsEmpty() {
		return a
	}
	out, err := geom.Difference(a.AsGeometry(), b.AsGeometry())
	if err != nil {
		return geom.MultiPolygon{}
	}
	mp, ok := toMultiPolygon(out)
	if !ok {
		return geom.MultiPolygon{}
	}
	return mp
}

// Intersection returns a ∩ b. On internal failure the fallback is the whole
// of a: when used for overlap detection, a failure must read as "overlaps".
func Intersection(a, b geom.MultiPolygon) geom.MultiPolygon {
	if a.IsEmpty() || b.IsEmpty() {
		return geom.MultiPolygon{}
	}
	out, err := geom.Intersection(a.AsGeometry(), b.AsGeometry())
	if err != nil {
		return a
	}
	mp, ok := toMultiPolygon(out)
	if !ok {
		return geom.MultiPolygon{}
	}
	return mp
}

// Overlaps reports whether a and b share interior area beyond epsilon.
func Overlaps(a, b geom.MultiPolygon) bool {
	return AreaKm2(Intersection(a, b)) > EpsilonKm2
}

// AreaKm2 returns the spherical surface area of the multipolygon in km².
// Zero for empty input, never negative.
func AreaKm2(mp geom.MultiPolygon) float64 {
	if mp.IsEmpty() {
		return 0
	}
	var m2 float64
	for i := 0; i < mp.NumPolygons(); i++ {
		m2 += polygonAreaM2(mp.PolygonN(i))
	}
	if m2 < 0 || math.IsNaN(m2) {
		return 0
	}
	return m2 / 1e6
}

// MarshalGeoJSON renders the multipolygon back to GeoJSON.
func MarshalGeoJSON(mp geom.MultiPolygon) (string, error) {
	if mp.IsEmpty() {
		return "", errEmptyGeometry
	}
	b, err := mp.AsGeometry().MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseGeometries extracts top-level geometries from raw GeoJSON, accepting a
// bare geometry or a FeatureCollection. Invalid rings are retried without
// validation and then self-repaired through a union; unrepairable input errors.
func parseGeometries(raw []byte) ([]geom.Geometry, error) {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, err
	}

	if peek.Type == "FeatureCollection" {
		var fc geom.GeoJSONFeatureCollection
		if err := json.Unmarshal(raw, &fc); err != nil {
			return nil, err
		}
		gs := make([]geom.Geometry, 0, len(fc))
		for _, f := range fc {
			gs = append(gs, f.Geometry)
		}
		return gs, nil
	}
	if peek.Type == "Feature" {
		var f geom.GeoJSONFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		return []geom.Geometry{f.Geometry}, nil
	}

	g, err := geom.UnmarshalGeoJSON(raw)
	if err == nil {
		return []geom.Geometry{g}, nil
	}

	// Ring validation failed. Re-parse leniently and try a self-union, which
	// renodes the geometry and repairs common self-intersections.
	g, nvErr := geom.UnmarshalGeoJSON(raw, geom.NoValidate{})
	if nvErr != nil {
		return nil, err
	}
	repaired, repErr := geom.Union(g, geom.MultiPolygon{}.AsGeometry())
	if repErr != nil {
		return nil, err
	}
	return []geom.Geometry{repaired}, nil
}

// toMultiPolygon converts any polygonal geometry to MultiPolygon form,
// dropping lower-dimension artifacts from set operations.
func toMultiPolygon(g geom.Geometry) (geom.MultiPolygon, bool) {
	switch g.Type() {
	case geom.TypeMultiPolygon:
		return g.MustAsMultiPolygon(), true
	case geom.TypePolygon:
		p := g.MustAsPolygon()
		if p.IsEmpty() {
			return geom.MultiPolygon{}, true
		}
		return geom.NewMultiPolygon([]geom.Polygon{p}), true
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		var polys []geom.Polygon
		for i := 0; i < gc.NumGeometries(); i++ {
			child, ok := toMultiPolygon(gc.GeometryN(i))
			if !ok {
				continue
			}
			for j := 0; j < child.NumPolygons(); j++ {
				polys = append(polys, child.PolygonN(j))
			}
		}
		return geom.NewMultiPolygon(polys), true
	default:
		return geom.MultiPolygon{}, false
	}
}

// concat merges the polygons of both inputs without dissolving shared
// boundaries. Used as the conservative union fallback: the result may
// double-cover overlap but never omits a blocker.
func concat(a, b geom.MultiPolygon) geom.MultiPolygon {
	polys := make([]geom.Polygon, 0, a.NumPolygons()+b.NumPolygons())
	for i := 0; i < a.NumPolygons(); i++ {
		polys = append(polys, a.PolygonN(i))
	}
	for i := 0; i < b.NumPolygons(); i++ {
		polys = append(polys, b.PolygonN(i))
	}
	return geom.NewMultiPolygon(polys)
}

// polygonAreaM2 computes the spherical area of one polygon: exterior minus holes.
func polygonAreaM2(p geom.Polygon) float64 {
	area := math.Abs(orbgeo.Area(ringToOrb(p.ExteriorRing())))
	for i := 0; i < p.NumInteriorRings(); i++ {
		area -= math.Abs(orbgeo.Area(ringToOrb(p.InteriorRingN(i))))
	}
	if area < 0 {
		return 0
	}
	return area
}

func ringToOrb(ls geom.LineString) orb.Ring {
	seq := ls.Coordinates()
	ring := make(orb.Ring, 0, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		ring = append(ring, orb.Point{xy.X, xy.Y})
	}
	return ring
}
