package dto

import (
	"time"

	"cloud.google.com/go/civil"
	geojson "github.com/paulmach/go.geojson"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
)

// ZoneResponse represents a contract zone in API responses
type ZoneResponse struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Active         bool              `json:"active"`
	ContactPerson  string            `json:"contact_person"`
	Email          string            `json:"email"`
	SecondaryEmail string            `json:"secondary_email"`
	Phone          string            `json:"phone"`
	Boundary       *geojson.Geometry `json:"boundary,omitempty"`
}

// ZoneFromDomain converts a domain zone. The boundary is included only when
// withBoundary is set, as it dominates the payload.
func ZoneFromDomain(z *domain.ContractZone, withBoundary bool) *ZoneResponse {
	resp := &ZoneResponse{
		ID:             z.ID,
		Name:           z.Name,
		Active:         z.Active,
		ContactPerson:  z.ContactPerson,
		Email:          z.Email,
		SecondaryEmail: z.SecondaryEmail,
		Phone:          z.Phone,
	}
	if withBoundary {
		resp.Boundary = z.Boundary
	}
	return resp
}

// DateRangeQuery holds optional from/to query parameters (YYYY-MM-DD)
type DateRangeQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// ToRange returns nil when neither bound is set. A single bound is
// completed from def.
func (q *DateRangeQuery) ToRange(def calendar.Range) (*calendar.Range, error) {
	if q.From == "" && q.To == "" {
		return nil, nil
	}
	from, to := def.From, def.To
	var err error
	if q.From != "" {
		if from, err = civil.ParseDate(q.From); err != nil {
			return nil, domain.NewValidationError(domain.CodeInvalidField, "from", "from must be a date (YYYY-MM-DD).")
		}
	}
	if q.To != "" {
		if to, err = civil.ParseDate(q.To); err != nil {
			return nil, domain.NewValidationError(domain.CodeInvalidField, "to", "to must be a date (YYYY-MM-DD).")
		}
	}
	rng := calendar.NewRange(from, to)
	return &rng, nil
}

// UnavailableDatesResponse lists the dates a zone cannot take new events
type UnavailableDatesResponse struct {
	ContractZoneID   int64        `json:"contract_zone"`
	UnavailableDates []civil.Date `json:"unavailable_dates"`
}

// GeoQueryResponse answers a map click
type GeoQueryResponse struct {
	ContractZone     *ZoneResponse `json:"contract_zone"`
	UnavailableDates []civil.Date  `json:"unavailable_dates"`
}

// BlockDateRequest is the body of POST /contract-zones/:id/blocked-dates
type BlockDateRequest struct {
	Date      string `json:"date" binding:"required"`
	Reason    string `json:"reason" binding:"max=255"`
	CreatedBy string `json:"created_by,omitempty"`
}

// ToDomain parses the request for zone zoneID
func (r *BlockDateRequest) ToDomain(zoneID int64) (*domain.BlockedDate, error) {
	d, err := civil.ParseDate(r.Date)
	if err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidField, "date", "date must be a date (YYYY-MM-DD).")
	}
	return &domain.BlockedDate{
		ContractZoneID: zoneID,
		Date:           d,
		Reason:         r.Reason,
		CreatedBy:      r.CreatedBy,
	}, nil
}

// BlockedDateResponse represents a blocked date in API responses
type BlockedDateResponse struct {
	ID             int64      `json:"id"`
	ContractZoneID int64      `json:"contract_zone"`
	Date           civil.Date `json:"date"`
	Reason         string     `json:"reason"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BlockedDateFromDomain converts a domain blocked date
func BlockedDateFromDomain(bd *domain.BlockedDate) *BlockedDateResponse {
	return &BlockedDateResponse{
		ID:             bd.ID,
		ContractZoneID: bd.ContractZoneID,
		Date:           bd.Date,
		Reason:         bd.Reason,
		CreatedBy:      bd.CreatedBy,
		CreatedAt:      bd.CreatedAt,
	}
}
