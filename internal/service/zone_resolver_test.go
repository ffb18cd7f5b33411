package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// MockZoneRepository is a mock implementation of ZoneRepository
type MockZoneRepository struct {
	CreateFunc         func(ctx context.Context, zone *domain.ContractZone) error
	GetByIDFunc        func(ctx context.Context, id int64) (*domain.ContractZone, error)
	ListFunc           func(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error)
	FindContainingFunc func(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error)
	LockFunc           func(ctx context.Context, id int64) error
}

func (m *MockZoneRepository) Create(ctx context.Context, zone *domain.ContractZone) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, zone)
	}
	return nil
}

func (m *MockZoneRepository) GetByID(ctx context.Context, id int64) (*domain.ContractZone, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrZoneNotFound
}

func (m *MockZoneRepository) List(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, activeOnly)
	}
	return nil, nil
}

func (m *MockZoneRepository) FindContaining(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error) {
	if m.FindContainingFunc != nil {
		return m.FindContainingFunc(ctx, p, activeOnly)
	}
	return nil, nil
}

func (m *MockZoneRepository) Lock(ctx context.Context, id int64) error {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, id)
	}
	return nil
}

func (m *MockZoneRepository) UpdateContacts(ctx context.Context, zone *domain.ContractZone) error {
	return nil
}

func TestZoneResolver_NoMatch(t *testing.T) {
	resolver := NewZoneResolver(&MockZoneRepository{}, nil)

	zone, err := resolver.ResolveActiveZone(context.Background(), insidePoint)
	require.NoError(t, err)
	assert.Nil(t, zone)
}

func TestZoneResolver_LowestIDWins(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := &MockZoneRepository{
		FindContainingFunc: func(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error) {
			assert.True(t, activeOnly)
			return []*domain.ContractZone{{ID: 7}, {ID: 3}, {ID: 5}}, nil
		},
	}
	resolver := NewZoneResolver(repo, logger.FromZap(zap.New(core)))

	zone, err := resolver.ResolveActiveZone(context.Background(), insidePoint)
	require.NoError(t, err)
	assert.Equal(t, int64(3), zone.ID)

	entries := logs.FilterField(zap.Bool("integrity_warning", true)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Point resolves to more than one contract zone", entries[0].Message)
}

func TestZoneResolver_IncludingInactive(t *testing.T) {
	repo := &MockZoneRepository{
		FindContainingFunc: func(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error) {
			if activeOnly {
				return nil, nil
			}
			return []*domain.ContractZone{{ID: 2, Active: false}}, nil
		},
	}
	resolver := NewZoneResolver(repo, nil)

	zone, err := resolver.ResolveActiveZone(context.Background(), insidePoint)
	require.NoError(t, err)
	assert.Nil(t, zone)

	zone, err = resolver.ResolveZoneIncludingInactive(context.Background(), insidePoint)
	require.NoError(t, err)
	require.NotNil(t, zone)
	assert.False(t, zone.Active)
}

func TestZoneResolver_RepositoryError(t *testing.T) {
	repo := &MockZoneRepository{
		FindContainingFunc: func(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error) {
			return nil, errors.New("db down")
		},
	}
	_, err := NewZoneResolver(repo, nil).ResolveActiveZone(context.Background(), insidePoint)
	assert.Error(t, err)
}

func TestZoneResolver_InvalidPoint(t *testing.T) {
	_, err := NewZoneResolver(&MockZoneRepository{}, nil).ResolveActiveZone(context.Background(), domain.Point{Lon: 200, Lat: 0})
	assert.True(t, domain.IsValidationError(err))
}
