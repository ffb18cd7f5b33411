package service

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
)

// ZoneResolver maps a point to the contract zone covering it
type ZoneResolver interface {
	// ResolveActiveZone returns the active zone covering p, or nil
	ResolveActiveZone(ctx context.Context, p domain.Point) (*domain.ContractZone, error)
	// ResolveZoneIncludingInactive returns any zone covering p, or nil
	ResolveZoneIncludingInactive(ctx context.Context, p domain.Point) (*domain.ContractZone, error)
}

// AvailabilityService computes the dates a zone cannot take new events
type AvailabilityService interface {
	// UnavailableDates returns blocked and full dates of the zone, ascending.
	// A nil rng means today through the booking horizon.
	UnavailableDates(ctx context.Context, zoneID int64, rng *calendar.Range, exclude *uuid.UUID) ([]civil.Date, error)
}

// AdmissionValidator checks an event write against time, zone and availability rules
type AdmissionValidator interface {
	// Validate applies draft onto existing (nil on create) and returns the
	// resulting event with the domain events the write produces
	Validate(ctx context.Context, draft *domain.EventDraft, existing *domain.Event) (*ValidatedEvent, error)
}

// EventService defines the interface for event business logic
type EventService interface {
	// CreateEvent validates and stores a new event
	CreateEvent(ctx context.Context, draft *domain.EventDraft) (*domain.Event, error)
	// UpdateEvent validates and applies a partial update
	UpdateEvent(ctx context.Context, id uuid.UUID, draft *domain.EventDraft) (*domain.Event, error)
	// GetEvent retrieves an event by ID
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	// ListEvents lists events with filters and pagination
	ListEvents(ctx context.Context, filter *repository.EventFilter, limit, offset int) ([]*domain.Event, int, error)
}

// ZoneService defines the interface for zone queries and blocked date administration
type ZoneService interface {
	// ListZones lists zones, optionally only active ones
	ListZones(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error)
	// GetZone retrieves a zone by ID
	GetZone(ctx context.Context, id int64) (*domain.ContractZone, error)
	// UnavailableDates returns the zone's unavailable dates in rng
	UnavailableDates(ctx context.Context, zoneID int64, rng *calendar.Range) ([]civil.Date, error)
	// GeoQuery returns the active zone at p with its unavailable dates
	GeoQuery(ctx context.Context, p domain.Point) (*GeoQueryResult, error)
	// BlockDate blocks a date in a zone
	BlockDate(ctx context.Context, bd *domain.BlockedDate) error
	// UnblockDate removes a blocked date
	UnblockDate(ctx context.Context, id int64) error
	// ListBlockedDates lists the zone's blocked dates in rng
	ListBlockedDates(ctx context.Context, zoneID int64, rng calendar.Range) ([]*domain.BlockedDate, error)
}

// GeoQueryResult is the zone lookup answer for a map click
type GeoQueryResult struct {
	Zone             *domain.ContractZone
	UnavailableDates []civil.Date
}
