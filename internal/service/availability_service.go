package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

type availabilityService struct {
	blocked repository.BlockedDateRepository
	events  repository.EventRepository
	cfg     config.EventsConfig
	loc     *time.Location
	clock   clock.Clock
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(
	blocked repository.BlockedDateRepository,
	events repository.EventRepository,
	cfg config.EventsConfig,
	clk clock.Clock,
) AvailabilityService {
	return &availabilityService{
		blocked: blocked,
		events:  events,
		cfg:     cfg,
		loc:     cfg.Location(),
		clock:   clk,
	}
}

// DefaultWindow is today through the furthest date a new event could touch
func DefaultWindow(cfg config.EventsConfig, loc *time.Location, now time.Time) calendar.Range {
	today := calendar.LocalDate(now, loc)
	return calendar.Range{From: today, To: today.AddDays(cfg.MaxDaysToStart + cfg.MaxDaysLength)}
}

func (s *availabilityService) UnavailableDates(ctx context.Context, zoneID int64, rng *calendar.Range, exclude *uuid.UUID) ([]civil.Date, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.unavailable_dates")
	defer span.End()

	window := DefaultWindow(s.cfg, s.loc, s.clock.Now())
	if rng != nil {
		window = *rng
	}
	span.SetAttributes(
		attribute.Int64("zone_id", zoneID),
		attribute.String("from", window.From.String()),
		attribute.String("to", window.To.String()),
	)

	unavailable := make(map[civil.Date]struct{})

	blocked, err := s.blocked.ListByZone(ctx, zoneID, window)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load blocked dates: %w", err)
	}
	for _, bd := range blocked {
		unavailable[bd.Date] = struct{}{}
	}

	from := calendar.StartOfDay(window.From, s.loc)
	to := calendar.StartOfDay(window.To.AddDays(1), s.loc)
	events, err := s.events.ListOverlapping(ctx, zoneID, from, to, exclude)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load zone events: %w", err)
	}

	counts := make(map[civil.Date]int)
	for _, e := range events {
		for _, d := range calendar.SpanDates(e.StartTime, e.EndTime, s.loc) {
			if window.Contains(d) {
				counts[d]++
			}
		}
	}
	for d, n := range counts {
		if n >= s.cfg.MaxCountPerZone {
			unavailable[d] = struct{}{}
		}
	}

	dates := make([]civil.Date, 0, len(unavailable))
	for d := range unavailable {
		dates = append(dates, d)
	}
	dates = calendar.SortDates(dates)
	span.SetAttributes(attribute.Int("unavailable_count", len(dates)))
	return dates, nil
}
