package domain

import (
	"fmt"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Point is a WGS84 location, longitude first as in GeoJSON
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Validate checks coordinate ranges
func (p Point) Validate() error {
	if p.Lon < -180 || p.Lon > 180 || p.Lat < -90 || p.Lat > 90 {
		return NewValidationError(CodeInvalidField, "location", fmt.Sprintf("invalid coordinates (%g, %g)", p.Lon, p.Lat))
	}
	return nil
}

// Geometry returns p as a GeoJSON point
func (p Point) Geometry() *geojson.Geometry {
	return geojson.NewPointGeometry([]float64{p.Lon, p.Lat})
}

func (p Point) String() string {
	return fmt.Sprintf("POINT(%g %g)", p.Lon, p.Lat)
}

// ContractZone is an area maintained by one contractor. Zones are synced
// from the city GIS feed and deactivated instead of deleted.
type ContractZone struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	OriginID       string            `json:"origin_id"`
	Boundary       *geojson.Geometry `json:"boundary,omitempty"`
	Active         bool              `json:"active"`
	ContactPerson  string            `json:"contact_person"`
	Email          string            `json:"email"`
	SecondaryEmail string            `json:"secondary_email"`
	Phone          string            `json:"phone"`
	ContractorIDs  []string          `json:"contractor_ids,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ModifiedAt     time.Time         `json:"modified_at"`
}

// ContactEmails returns the configured contact addresses, primary first
func (z *ContractZone) ContactEmails() []string {
	var emails []string
	if z.Email != "" {
		emails = append(emails, z.Email)
	}
	if z.SecondaryEmail != "" && z.SecondaryEmail != z.Email {
		emails = append(emails, z.SecondaryEmail)
	}
	return emails
}

// NormalizeBoundary returns g as a MultiPolygon. Polygons are wrapped into
// a single-member multipolygon.
func NormalizeBoundary(g *geojson.Geometry) (*geojson.Geometry, error) {
	if g == nil {
		return nil, NewValidationError(CodeMissingField, "boundary", "boundary is required")
	}
	switch g.Type {
	case geojson.GeometryMultiPolygon:
		if len(g.MultiPolygon) == 0 {
			return nil, NewValidationError(CodeInvalidField, "boundary", "boundary has no polygons")
		}
		return g, nil
	case geojson.GeometryPolygon:
		if len(g.Polygon) == 0 {
			return nil, NewValidationError(CodeInvalidField, "boundary", "boundary has no rings")
		}
		return geojson.NewMultiPolygonGeometry(g.Polygon), nil
	default:
		return nil, NewValidationError(CodeInvalidField, "boundary", fmt.Sprintf("unsupported boundary type %s", g.Type))
	}
}
