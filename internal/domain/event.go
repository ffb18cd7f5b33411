package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventState is the approval lifecycle state
type EventState string

const (
	EventStateWaitingForApproval EventState = "waiting_for_approval"
	EventStateApproved           EventState = "approved"
)

// Valid reports whether s is a known state
func (s EventState) Valid() bool {
	return s == EventStateWaitingForApproval || s == EventStateApproved
}

// Anonymization sentinels. The email doubles as the "already done" marker.
const (
	AnonymizedEventName      = "Anonymized event"
	AnonymizedOrganizerEmail = "anonymized@invalid"
)

// Event is a park cleanup event
type Event struct {
	ID          uuid.UUID  `json:"id"`
	State       EventState `json:"state"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Location    Point      `json:"location"`

	ContractZoneID int64 `json:"contract_zone_id"`

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

	// Nil until the reminder has been sent; never cleared afterwards
	ApprovalCreationReminderSentAt *time.Time `json:"approval_creation_reminder_sent_at,omitempty"`
	ApprovalDeadlineReminderSentAt *time.Time `json:"approval_deadline_reminder_sent_at,omitempty"`
	EventReminderSentAt            *time.Time `json:"reminder_sent_at,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Clone returns a copy that shares no pointers with e
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.ApprovalCreationReminderSentAt = cloneTime(e.ApprovalCreationReminderSentAt)
	c.ApprovalDeadlineReminderSentAt = cloneTime(e.ApprovalDeadlineReminderSentAt)
	c.EventReminderSentAt = cloneTime(e.EventReminderSentAt)
	return &c
}

// IsAnonymized reports whether the PII fields were already redacted
func (e *Event) IsAnonymized() bool {
	return e.OrganizerEmail == AnonymizedOrganizerEmail
}

// Anonymize overwrites the personal data fields with sentinels. Time window,
// location and state are kept.
func (e *Event) Anonymize(now time.Time) {
	e.Name = AnonymizedEventName
	e.Description = ""
	e.AdditionalInformation = ""
	e.OrganizerFirstName = ""
	e.OrganizerLastName = ""
	e.OrganizerEmail = AnonymizedOrganizerEmail
	e.OrganizerPhone = ""
	e.ModifiedAt = now
}

// TransitionState moves e to next and returns the domain events the change
// produces. Only WaitingForApproval -> Approved emits EventApproved.
func (e *Event) TransitionState(next EventState, at time.Time) ([]DomainEvent, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventState, next)
	}
	prev := e.State
	e.State = next
	if prev == EventStateWaitingForApproval && next == EventStateApproved {
		return []DomainEvent{{Type: DomainEventApproved, Event: e, OccurredAt: at}}, nil
	}
	return nil, nil
}

// EventDraft is a create or partial-update request. Nil fields are left
// unchanged on update.
type EventDraft struct {
	State       *EventState
	Name        *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
	Location    *Point

	OrganizerFirstName *string
	OrganizerLastName  *string
	OrganizerEmail     *string
	OrganizerPhone     *string

	EstimatedAttendeeCount *int
	Targets                *string
	MaintenanceLocation    *string
	AdditionalInformation  *string
	SmallTrashBagCount     *int
	LargeTrashBagCount     *int
	TrashPickerCount       *int
	EquipmentInformation   *string
}

// ApplyTo copies every set field of d onto e
func (d *EventDraft) ApplyTo(e *Event) {
	setString(&e.Name, d.Name)
	setString(&e.Description, d.Description)
	if d.StartTime != nil {
		e.StartTime = *d.StartTime
	}
	if d.EndTime != nil {
		e.EndTime = *d.EndTime
	}
	if d.Location != nil {
		e.Location = *d.Location
	}
	setString(&e.OrganizerFirstName, d.OrganizerFirstName)
	setString(&e.OrganizerLastName, d.OrganizerLastName)
	setString(&e.OrganizerEmail, d.OrganizerEmail)
	setString(&e.OrganizerPhone, d.OrganizerPhone)
	setInt(&e.EstimatedAttendeeCount, d.EstimatedAttendeeCount)
	setString(&e.Targets, d.Targets)
	setString(&e.MaintenanceLocation, d.MaintenanceLocation)
	setString(&e.AdditionalInformation, d.AdditionalInformation)
	setInt(&e.SmallTrashBagCount, d.SmallTrashBagCount)
	setInt(&e.LargeTrashBagCount, d.LargeTrashBagCount)
	setInt(&e.TrashPickerCount, d.TrashPickerCount)
	setString(&e.EquipmentInformation, d.EquipmentInformation)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
