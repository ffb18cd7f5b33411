package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// ValidatedEvent is an event ready to be written plus the domain events the
// caller dispatches after commit
type ValidatedEvent struct {
	Event        *domain.Event
	Zone         *domain.ContractZone
	DomainEvents []domain.DomainEvent
}

type admissionValidator struct {
	resolver     ZoneResolver
	availability AvailabilityService
	zones        zoneGetter
	cfg          config.EventsConfig
	loc          *time.Location
	clock        clock.Clock
	log          *logger.Logger
}

type zoneGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.ContractZone, error)
}

// NewAdmissionValidator creates a new AdmissionValidator
func NewAdmissionValidator(
	resolver ZoneResolver,
	availability AvailabilityService,
	zones zoneGetter,
	cfg config.EventsConfig,
	clk clock.Clock,
	log *logger.Logger,
) AdmissionValidator {
	return &admissionValidator{
		resolver:     resolver,
		availability: availability,
		zones:        zones,
		cfg:          cfg,
		loc:          cfg.Location(),
		clock:        clk,
		log:          log,
	}
}

func (v *admissionValidator) Validate(ctx context.Context, draft *domain.EventDraft, existing *domain.Event) (*ValidatedEvent, error) {
	if draft == nil {
		draft = &domain.EventDraft{}
	}
	now := v.clock.Now()
	creating := existing == nil

	if creating {
		if err := requireCreateFields(draft); err != nil {
			return nil, err
		}
	}

	var ev *domain.Event
	if creating {
		ev = &domain.Event{}
	} else {
		ev = existing.Clone()
	}
	draft.ApplyTo(ev)

	startChanged := draft.StartTime != nil && (creating || !draft.StartTime.Equal(existing.StartTime))
	endChanged := draft.EndTime != nil && (creating || !draft.EndTime.Equal(existing.EndTime))
	locationChanged := draft.Location != nil && (creating || *draft.Location != existing.Location)

	if !ev.StartTime.Before(ev.EndTime) {
		return nil, domain.NewValidationError(domain.CodeInvalidTimeRange, "end_time", "Event must start before ending.")
	}

	if draft.StartTime != nil && ev.StartTime.After(now.AddDate(0, 0, v.cfg.MaxDaysToStart)) {
		return nil, domain.NewValidationError(domain.CodeStartTooFar, "start_time",
			fmt.Sprintf("Event cannot start later than %d days from now.", v.cfg.MaxDaysToStart))
	}

	if startChanged {
		firstAllowed := calendar.StartOfDay(calendar.LocalDate(now, v.loc).AddDays(v.cfg.MinDaysBeforeStart+1), v.loc)
		if ev.StartTime.Before(firstAllowed) {
			return nil, domain.NewValidationError(domain.CodeStartTooSoon, "start_time",
				fmt.Sprintf("Event must start at least %d full days from now.", v.cfg.MinDaysBeforeStart))
		}
	}

	if ev.EndTime.Sub(ev.StartTime) > time.Duration(v.cfg.MaxDaysLength)*24*time.Hour {
		return nil, domain.NewValidationError(domain.CodeDurationTooLong, "end_time",
			fmt.Sprintf("The event duration cannot exceed %d days.", v.cfg.MaxDaysLength))
	}

	zone, err := v.zoneFor(ctx, ev, existing, locationChanged)
	if err != nil {
		return nil, err
	}
	ev.ContractZoneID = zone.ID

	if startChanged || endChanged || locationChanged {
		if err := v.checkAvailability(ctx, ev, existing); err != nil {
			return nil, err
		}
	}

	result := &ValidatedEvent{Event: ev, Zone: zone}
	if creating {
		ev.State = domain.EventStateWaitingForApproval
		ev.CreatedAt = now
		ev.ModifiedAt = now
		result.DomainEvents = []domain.DomainEvent{{Type: domain.DomainEventCreated, Event: ev, OccurredAt: now}}
		return result, nil
	}

	ev.State = existing.State
	if draft.State != nil {
		events, err := ev.TransitionState(*draft.State, now)
		if err != nil {
			return nil, domain.NewValidationError(domain.CodeInvalidField, "state", err.Error())
		}
		result.DomainEvents = events
	}
	ev.ModifiedAt = now
	return result, nil
}

func requireCreateFields(d *domain.EventDraft) error {
	switch {
	case d.Name == nil || *d.Name == "":
		return domain.NewValidationError(domain.CodeMissingField, "name", "This field is required.")
	case d.StartTime == nil:
		return domain.NewValidationError(domain.CodeMissingField, "start_time", "This field is required.")
	case d.EndTime == nil:
		return domain.NewValidationError(domain.CodeMissingField, "end_time", "This field is required.")
	case d.Location == nil:
		return domain.NewValidationError(domain.CodeMissingField, "location", "This field is required.")
	}
	return nil
}

// zoneFor resolves the zone on create or relocation and otherwise keeps the
// event's existing zone
func (v *admissionValidator) zoneFor(ctx context.Context, ev, existing *domain.Event, locationChanged bool) (*domain.ContractZone, error) {
	if !locationChanged {
		zone, err := v.zones.GetByID(ctx, existing.ContractZoneID)
		if err != nil {
			return nil, fmt.Errorf("failed to load event zone: %w", err)
		}
		return zone, nil
	}

	if err := ev.Location.Validate(); err != nil {
		return nil, err
	}
	zone, err := v.resolver.ResolveActiveZone(ctx, ev.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone: %w", err)
	}
	if zone != nil {
		return zone, nil
	}

	if existing == nil {
		inactive, err := v.resolver.ResolveZoneIncludingInactive(ctx, ev.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve zone: %w", err)
		}
		if inactive != nil {
			v.log.InfoContext(ctx, "Event location is inside an inactive contract zone",
				zap.Int64("zone_id", inactive.ID),
				zap.String("point", ev.Location.String()),
			)
		}
	}
	return nil, domain.NewNoContractZoneError()
}

func (v *admissionValidator) checkAvailability(ctx context.Context, ev, existing *domain.Event) error {
	window := calendar.SpanRange(ev.StartTime, ev.EndTime, v.loc)

	var unavailable []civil.Date
	var err error
	if existing != nil {
		id := existing.ID
		unavailable, err = v.availability.UnavailableDates(ctx, ev.ContractZoneID, &window, &id)
	} else {
		unavailable, err = v.availability.UnavailableDates(ctx, ev.ContractZoneID, &window, nil)
	}
	if err != nil {
		return err
	}
	if len(unavailable) == 0 {
		return nil
	}

	blocked := make(map[civil.Date]struct{}, len(unavailable))
	for _, d := range unavailable {
		blocked[d] = struct{}{}
	}
	var conflicts []civil.Date
	for _, d := range calendar.SpanDates(ev.StartTime, ev.EndTime, v.loc) {
		if _, ok := blocked[d]; ok {
			conflicts = append(conflicts, d)
		}
	}
	if len(conflicts) > 0 {
		return domain.NewUnavailableDatesError(conflicts)
	}
	return nil
}
