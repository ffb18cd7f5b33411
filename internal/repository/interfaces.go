package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
)

// Transactor runs fn inside one unit of work. Repository calls made with the
// ctx passed to fn join it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ZoneRepository defines the interface for contract zone data access
type ZoneRepository interface {
	// Create stores a new zone. The boundary is normalised to a MultiPolygon.
	Create(ctx context.Context, zone *domain.ContractZone) error
	// GetByID retrieves a zone by ID
	GetByID(ctx context.Context, id int64) (*domain.ContractZone, error)
	// List lists zones ordered by ID
	List(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error)
	// FindContaining lists zones whose boundary covers p, ordered by ID
	FindContaining(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error)
	// Lock takes a row lock on the zone for the rest of the transaction
	Lock(ctx context.Context, id int64) error
	// UpdateContacts updates contact fields and the active flag. The boundary is immutable.
	UpdateContacts(ctx context.Context, zone *domain.ContractZone) error
}

// BlockedDateRepository defines the interface for blocked date data access
type BlockedDateRepository interface {
	// Create stores a blocked date, failing with ErrBlockedDateExists on duplicates
	Create(ctx context.Context, bd *domain.BlockedDate) error
	// GetByID retrieves a blocked date by ID
	GetByID(ctx context.Context, id int64) (*domain.BlockedDate, error)
	// Delete removes a blocked date
	Delete(ctx context.Context, id int64) error
	// ListByZone lists the zone's blocked dates inside r, ascending
	ListByZone(ctx context.Context, zoneID int64, r calendar.Range) ([]*domain.BlockedDate, error)
}

// EventRepository defines the interface for event data access
type EventRepository interface {
	// Create creates a new event
	Create(ctx context.Context, event *domain.Event) error
	// GetByID retrieves an event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	// Update writes all mutable fields. Reminder timestamps are not touched.
	Update(ctx context.Context, event *domain.Event) error
	// List lists events with filters and pagination
	List(ctx context.Context, filter *EventFilter, limit, offset int) ([]*domain.Event, int, error)
	// ListOverlapping lists the zone's events in any state with
	// start_time < to and end_time >= from, optionally skipping one event
	ListOverlapping(ctx context.Context, zoneID int64, from, to time.Time, exclude *uuid.UUID) ([]*domain.Event, error)
	// ListPendingApproval lists events waiting for approval that start after now
	ListPendingApproval(ctx context.Context, now time.Time) ([]*domain.Event, error)
	// ListUpcomingWithoutReminder lists events of any state starting after now
	// whose event reminder has not been sent
	ListUpcomingWithoutReminder(ctx context.Context, now time.Time) ([]*domain.Event, error)
	// MarkApprovalRemindersSent sets the selected approval reminder
	// timestamps that are still null
	MarkApprovalRemindersSent(ctx context.Context, id uuid.UUID, creation, deadline bool, at time.Time) error
	// MarkEventReminderSent sets the event reminder timestamp if still null.
	// It reports whether a row changed.
	MarkEventReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// CountAnonymizable counts events ended on or before cutoff that still hold personal data
	CountAnonymizable(ctx context.Context, cutoff time.Time) (int, error)
	// Anonymize redacts every event CountAnonymizable would count
	Anonymize(ctx context.Context, cutoff, now time.Time) (int, error)
}

// EventFilter contains filter options for listing events
type EventFilter struct {
	State          domain.EventState
	ContractZoneID int64
	StartsAfter    *time.Time
	StartsBefore   *time.Time
}
