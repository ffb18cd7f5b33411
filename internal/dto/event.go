package dto

import (
	"fmt"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
)

// EventRequest is the body of POST /events and PATCH /events/:id. Absent
// fields are left unchanged on update.
type EventRequest struct {
	State       *string           `json:"state,omitempty"`
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	StartTime   *time.Time        `json:"start_time,omitempty"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Location    *geojson.Geometry `json:"location,omitempty"`

	OrganizerFirstName *string `json:"organizer_first_name,omitempty"`
	OrganizerLastName  *string `json:"organizer_last_name,omitempty"`
	OrganizerEmail     *string `json:"organizer_email,omitempty" binding:"omitempty,email"`
	OrganizerPhone     *string `json:"organizer_phone,omitempty"`

	EstimatedAttendeeCount *int    `json:"estimated_attendee_count,omitempty" binding:"omitempty,min=0"`
	Targets                *string `json:"targets,omitempty"`
	MaintenanceLocation    *string `json:"maintenance_location,omitempty"`
	AdditionalInformation  *string `json:"additional_information,omitempty"`
	SmallTrashBagCount     *int    `json:"small_trash_bag_count,omitempty" binding:"omitempty,min=0"`
	LargeTrashBagCount     *int    `json:"large_trash_bag_count,omitempty" binding:"omitempty,min=0"`
	TrashPickerCount       *int    `json:"trash_picker_count,omitempty" binding:"omitempty,min=0"`
	EquipmentInformation   *string `json:"equipment_information,omitempty"`
}

// ToDraft converts the request into a domain draft. Location must be a
// GeoJSON Point in WGS84.
func (r *EventRequest) ToDraft() (*domain.EventDraft, error) {
	d := &domain.EventDraft{
		Name:                   r.Name,
		Description:            r.Description,
		StartTime:              r.StartTime,
		EndTime:                r.EndTime,
		OrganizerFirstName:     r.OrganizerFirstName,
		OrganizerLastName:      r.OrganizerLastName,
		OrganizerEmail:         r.OrganizerEmail,
		OrganizerPhone:         r.OrganizerPhone,
		EstimatedAttendeeCount: r.EstimatedAttendeeCount,
		Targets:                r.Targets,
		MaintenanceLocation:    r.MaintenanceLocation,
		AdditionalInformation:  r.AdditionalInformation,
		SmallTrashBagCount:     r.SmallTrashBagCount,
		LargeTrashBagCount:     r.LargeTrashBagCount,
		TrashPickerCount:       r.TrashPickerCount,
		EquipmentInformation:   r.EquipmentInformation,
	}

	if r.State != nil {
		s := domain.EventState(*r.State)
		if !s.Valid() {
			return nil, domain.NewValidationError(domain.CodeInvalidField, "state",
				fmt.Sprintf("Unknown state %q.", *r.State))
		}
		d.State = &s
	}

	if r.Location != nil {
		p, err := PointFromGeometry(r.Location)
		if err != nil {
			return nil, err
		}
		d.Location = &p
	}
	return d, nil
}

// PointFromGeometry reads a GeoJSON Point
func PointFromGeometry(g *geojson.Geometry) (domain.Point, error) {
	if g == nil || !g.IsPoint() || len(g.Point) < 2 {
		return domain.Point{}, domain.NewValidationError(domain.CodeInvalidField, "location",
			"Location must be a GeoJSON Point.")
	}
	p := domain.Point{Lon: g.Point[0], Lat: g.Point[1]}
	if err := p.Validate(); err != nil {
		return domain.Point{}, err
	}
	return p, nil
}

// EventResponse represents an event in API responses
type EventResponse struct {
	ID             string            `json:"id"`
	State          string            `json:"state"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	Location       *geojson.Geometry `json:"location"`
	ContractZoneID int64             `json:"contract_zone"`

	OrganizerFirstName string `json:"organizer_first_name"`
	OrganizerLastName  string `json:"organizer_last_name"`
	OrganizerEmail     string `json:"organizer_email"`
	OrganizerPhone     string `json:"organizer_phone"`

	EstimatedAttendeeCount int    `json:"estimated_attendee_count"`
	Targets                string `json:"targets"`
	MaintenanceLocation    string `json:"maintenance_location"`
	AdditionalInformation  string `json:"additional_information"`
	SmallTrashBagCount     int    `json:"small_trash_bag_count"`
	LargeTrashBagCount     int    `json:"large_trash_bag_count"`
	TrashPickerCount       int    `json:"trash_picker_count"`
	EquipmentInformation   string `json:"equipment_information"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// EventFromDomain converts a domain Event to EventResponse
func EventFromDomain(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:                     e.ID.String(),
		State:                  string(e.State),
		Name:                   e.Name,
		Description:            e.Description,
		StartTime:              e.StartTime,
		EndTime:                e.EndTime,
		Location:               e.Location.Geometry(),
		ContractZoneID:         e.ContractZoneID,
		OrganizerFirstName:     e.OrganizerFirstName,
		OrganizerLastName:      e.OrganizerLastName,
		OrganizerEmail:         e.OrganizerEmail,
		OrganizerPhone:         e.OrganizerPhone,
		EstimatedAttendeeCount: e.EstimatedAttendeeCount,
		Targets:                e.Targets,
		MaintenanceLocation:    e.MaintenanceLocation,
		AdditionalInformation:  e.AdditionalInformation,
		SmallTrashBagCount:     e.SmallTrashBagCount,
		LargeTrashBagCount:     e.LargeTrashBagCount,
		TrashPickerCount:       e.TrashPickerCount,
		EquipmentInformation:   e.EquipmentInformation,
		CreatedAt:              e.CreatedAt,
		ModifiedAt:             e.ModifiedAt,
	}
}

// ListEventsQuery holds query parameters of GET /events. Times are RFC 3339.
type ListEventsQuery struct {
	State        string `form:"state"`
	ContractZone int64  `form:"contract_zone"`
	StartsAfter  string `form:"starts_after"`
	StartsBefore string `form:"starts_before"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// ToFilter converts the query into a repository filter
func (q *ListEventsQuery) ToFilter() (*repository.EventFilter, error) {
	f := &repository.EventFilter{
		State:          domain.EventState(q.State),
		ContractZoneID: q.ContractZone,
	}
	if q.State != "" && !f.State.Valid() {
		return nil, domain.NewValidationError(domain.CodeInvalidField, "state",
			fmt.Sprintf("Unknown state %q.", q.State))
	}
	var err error
	if f.StartsAfter, err = parseOptionalTime("starts_after", q.StartsAfter); err != nil {
		return nil, err
	}
	if f.StartsBefore, err = parseOptionalTime("starts_before", q.StartsBefore); err != nil {
		return nil, err
	}
	return f, nil
}

func parseOptionalTime(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidField, field,
			fmt.Sprintf("%s must be an RFC 3339 timestamp.", field))
	}
	return &t, nil
}

// PaginatedResponse represents a page of results
type PaginatedResponse struct {
	Data   interface{} `json:"data"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
