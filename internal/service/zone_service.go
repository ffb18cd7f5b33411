package service

import (
	"context"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// zoneService implements ZoneService
type zoneService struct {
	zones        repository.ZoneRepository
	blocked      repository.BlockedDateRepository
	resolver     ZoneResolver
	availability AvailabilityService
	log          *logger.Logger
}

// NewZoneService creates a new ZoneService
func NewZoneService(
	zones repository.ZoneRepository,
	blocked repository.BlockedDateRepository,
	resolver ZoneResolver,
	availability AvailabilityService,
	log *logger.Logger,
) ZoneService {
	return &zoneService{
		zones:        zones,
		blocked:      blocked,
		resolver:     resolver,
		availability: availability,
		log:          log,
	}
}

func (s *zoneService) ListZones(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error) {
	return s.zones.List(ctx, activeOnly)
}

func (s *zoneService) GetZone(ctx context.Context, id int64) (*domain.ContractZone, error) {
	return s.zones.GetByID(ctx, id)
}

func (s *zoneService) UnavailableDates(ctx context.Context, zoneID int64, rng *calendar.Range) ([]civil.Date, error) {
	if _, err := s.zones.GetByID(ctx, zoneID); err != nil {
		return nil, err
	}
	return s.availability.UnavailableDates(ctx, zoneID, rng, nil)
}

// GeoQuery returns ErrZoneNotFound when no active zone covers p
func (s *zoneService) GeoQuery(ctx context.Context, p domain.Point) (*GeoQueryResult, error) {
	zone, err := s.resolver.ResolveActiveZone(ctx, p)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, domain.ErrZoneNotFound
	}
	dates, err := s.availability.UnavailableDates(ctx, zone.ID, nil, nil)
	if err != nil {
		return nil, err
	}
	return &GeoQueryResult{Zone: zone, UnavailableDates: dates}, nil
}

func (s *zoneService) BlockDate(ctx context.Context, bd *domain.BlockedDate) error {
	if bd.Date.IsZero() || !bd.Date.IsValid() {
		return domain.NewValidationError(domain.CodeMissingField, "date", "This field is required.")
	}
	if _, err := s.zones.GetByID(ctx, bd.ContractZoneID); err != nil {
		return err
	}
	if err := s.blocked.Create(ctx, bd); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Date blocked",
		zap.Int64("zone_id", bd.ContractZoneID),
		zap.String("date", bd.Date.String()),
		zap.String("created_by", bd.CreatedBy),
	)
	return nil
}

func (s *zoneService) UnblockDate(ctx context.Context, id int64) error {
	return s.blocked.Delete(ctx, id)
}

func (s *zoneService) ListBlockedDates(ctx context.Context, zoneID int64, rng calendar.Range) ([]*domain.BlockedDate, error) {
	return s.blocked.ListByZone(ctx, zoneID, rng)
}
