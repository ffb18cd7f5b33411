package service

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/notification"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// DomainEventPublisher delivers domain events after the write commits
type DomainEventPublisher interface {
	Publish(ctx context.Context, evt domain.DomainEvent, zone *domain.ContractZone) error
}

var _ DomainEventPublisher = (*notification.Notifier)(nil)

// eventService implements EventService
type eventService struct {
	tx        repository.Transactor
	zones     repository.ZoneRepository
	events    repository.EventRepository
	resolver  ZoneResolver
	validator AdmissionValidator
	publisher DomainEventPublisher
	log       *logger.Logger
}

// EventServiceConfig contains the collaborators of EventService
type EventServiceConfig struct {
	Transactor repository.Transactor
	Zones      repository.ZoneRepository
	Events     repository.EventRepository
	Resolver   ZoneResolver
	Validator  AdmissionValidator
	Publisher  DomainEventPublisher
	Logger     *logger.Logger
}

// NewEventService creates a new EventService
func NewEventService(cfg *EventServiceConfig) EventService {
	return &eventService{
		tx:        cfg.Transactor,
		zones:     cfg.Zones,
		events:    cfg.Events,
		resolver:  cfg.Resolver,
		validator: cfg.Validator,
		publisher: cfg.Publisher,
		log:       cfg.Logger,
	}
}

// CreateEvent validates and stores a new event. Capacity is checked while
// holding the zone row lock so concurrent requests cannot overbook a date.
func (s *eventService) CreateEvent(ctx context.Context, draft *domain.EventDraft) (*domain.Event, error) {
	var validated *ValidatedEvent
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var zoneIDs []int64
		if draft != nil && draft.Location != nil {
			zoneIDs = s.candidateZone(ctx, *draft.Location, zoneIDs)
		}
		if err := s.lockZones(ctx, zoneIDs); err != nil {
			return err
		}

		v, err := s.validator.Validate(ctx, draft, nil)
		if err != nil {
			return err
		}
		if err := s.events.Create(ctx, v.Event); err != nil {
			return err
		}
		validated = v
		return nil
	})
	if err != nil {
		metrics.RecordAdmission(ctx, "create", rejectionCode(err))
		return nil, err
	}
	metrics.RecordAdmission(ctx, "create", "")

	s.log.InfoContext(ctx, "Event created",
		zap.String("event_id", validated.Event.ID.String()),
		zap.Int64("zone_id", validated.Event.ContractZoneID),
	)
	s.publish(ctx, validated)
	return validated.Event, nil
}

// UpdateEvent validates and applies a partial update
func (s *eventService) UpdateEvent(ctx context.Context, id uuid.UUID, draft *domain.EventDraft) (*domain.Event, error) {
	var validated *ValidatedEvent
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.events.GetByID(ctx, id)
		if err != nil {
			return err
		}

		zoneIDs := []int64{existing.ContractZoneID}
		if draft != nil && draft.Location != nil && *draft.Location != existing.Location {
			zoneIDs = s.candidateZone(ctx, *draft.Location, zoneIDs)
		}
		if err := s.lockZones(ctx, zoneIDs); err != nil {
			return err
		}

		v, err := s.validator.Validate(ctx, draft, existing)
		if err != nil {
			return err
		}
		if err := s.events.Update(ctx, v.Event); err != nil {
			return err
		}
		validated = v
		return nil
	})
	if err != nil {
		metrics.RecordAdmission(ctx, "update", rejectionCode(err))
		return nil, err
	}
	metrics.RecordAdmission(ctx, "update", "")

	s.publish(ctx, validated)
	return validated.Event, nil
}

// GetEvent retrieves an event by ID
func (s *eventService) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return s.events.GetByID(ctx, id)
}

// ListEvents lists events with filters and pagination
func (s *eventService) ListEvents(ctx context.Context, filter *repository.EventFilter, limit, offset int) ([]*domain.Event, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.events.List(ctx, filter, limit, offset)
}

// candidateZone appends the active zone at p, if any. Resolution errors are
// left for the validator to report.
func (s *eventService) candidateZone(ctx context.Context, p domain.Point, ids []int64) []int64 {
	zone, err := s.resolver.ResolveActiveZone(ctx, p)
	if err != nil || zone == nil {
		return ids
	}
	return append(ids, zone.ID)
}

// lockZones locks in ascending ID order so two relocations cannot deadlock
func (s *eventService) lockZones(ctx context.Context, ids []int64) error {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var last int64
	for i, id := range ids {
		if i > 0 && id == last {
			continue
		}
		if err := s.zones.Lock(ctx, id); err != nil {
			return err
		}
		last = id
	}
	return nil
}

// publish sends notifications for committed domain events. Failures are
// logged; the write stands.
func (s *eventService) publish(ctx context.Context, v *ValidatedEvent) {
	if s.publisher == nil {
		return
	}
	for _, evt := range v.DomainEvents {
		if err := s.publisher.Publish(ctx, evt, v.Zone); err != nil {
			s.log.ErrorContext(ctx, "Failed to send event notifications",
				zap.String("event_id", evt.Event.ID.String()),
				zap.String("domain_event", string(evt.Type)),
				zap.Error(err),
			)
		}
	}
}

func rejectionCode(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return "error"
}
