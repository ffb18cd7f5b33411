package domain

import "time"

// DomainEventType names a state change that has side effects
type DomainEventType string

const (
	DomainEventCreated  DomainEventType = "event_created"
	DomainEventApproved DomainEventType = "event_approved"
)

// DomainEvent is returned by state changes for the caller to dispatch
// after the write commits
type DomainEvent struct {
	Type       DomainEventType
	Event      *Event
	OccurredAt time.Time
}
