package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

type zoneResolver struct {
	zones repository.ZoneRepository
	log   *logger.Logger
}

// NewZoneResolver creates a new ZoneResolver
func NewZoneResolver(zones repository.ZoneRepository, log *logger.Logger) ZoneResolver {
	return &zoneResolver{zones: zones, log: log}
}

func (r *zoneResolver) ResolveActiveZone(ctx context.Context, p domain.Point) (*domain.ContractZone, error) {
	return r.resolve(ctx, p, true)
}

func (r *zoneResolver) ResolveZoneIncludingInactive(ctx context.Context, p domain.Point) (*domain.ContractZone, error) {
	return r.resolve(ctx, p, false)
}

// resolve picks the lowest ID when the zone feed has overlapping boundaries
func (r *zoneResolver) resolve(ctx context.Context, p domain.Point, activeOnly bool) (*domain.ContractZone, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	candidates, err := r.zones.FindContaining(ctx, p, activeOnly)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	chosen := candidates[0]
	for _, z := range candidates[1:] {
		if z.ID < chosen.ID {
			chosen = z
		}
	}
	if len(candidates) > 1 {
		ids := make([]int64, len(candidates))
		for i, z := range candidates {
			ids[i] = z.ID
		}
		r.log.WarnContext(ctx, "Point resolves to more than one contract zone",
			zap.Bool("integrity_warning", true),
			zap.Int64s("zone_ids", ids),
			zap.String("point", p.String()),
			zap.Bool("active_only", activeOnly),
			zap.Int64("chosen_zone_id", chosen.ID),
		)
	}
	return chosen, nil
}
