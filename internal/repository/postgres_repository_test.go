package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/migrations"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getPostgresPool connects to a PostGIS-enabled test database and resets it
func getPostgresPool(t *testing.T) *pgxpool.Pool {
	skipIfNoIntegration(t)

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envOr("TEST_POSTGRES_USER", "postgres"),
		envOr("TEST_POSTGRES_PASSWORD", "postgres"),
		envOr("TEST_POSTGRES_HOST", "localhost"),
		envOr("TEST_POSTGRES_PORT", "5432"),
		envOr("TEST_POSTGRES_DB", "haravajarjestelma_test"),
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping PostgreSQL: %v", err)
	}
	if _, err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE events, blocked_dates, contract_zone_contractors, contract_zones RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("Failed to clean up test data: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepositories_Integration(t *testing.T) {
	pool := getPostgresPool(t)
	ctx := context.Background()

	zones := NewPostgresZoneRepository(pool)
	blocked := NewPostgresBlockedDateRepository(pool)
	events := NewPostgresEventRepository(pool)
	tx := NewPostgresTransactor(pool)

	zone := &domain.ContractZone{
		Name:          "Kallio",
		OriginID:      "it-" + uuid.NewString(),
		Boundary:      square(24.90, 60.15, 25.00, 60.20),
		Active:        true,
		Email:         "contractor@example.com",
		ContractorIDs: []string{"user-1"},
	}
	require.NoError(t, zones.Create(ctx, zone))

	t.Run("FindContaining", func(t *testing.T) {
		got, err := zones.FindContaining(ctx, domain.Point{Lon: 24.95, Lat: 60.17}, true)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, zone.ID, got[0].ID)
		assert.Equal(t, []string{"user-1"}, got[0].ContractorIDs)

		got, err = zones.FindContaining(ctx, domain.Point{Lon: 23.0, Lat: 60.17}, true)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("BlockedDates", func(t *testing.T) {
		d := civil.Date{Year: 2024, Month: 6, Day: 12}
		bd := &domain.BlockedDate{ContractZoneID: zone.ID, Date: d, Reason: "festival"}
		require.NoError(t, blocked.Create(ctx, bd))
		assert.ErrorIs(t, blocked.Create(ctx, &domain.BlockedDate{ContractZoneID: zone.ID, Date: d}), domain.ErrBlockedDateExists)

		list, err := blocked.ListByZone(ctx, zone.ID, calendar.NewRange(d, d))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, d, list[0].Date)
	})

	t.Run("EventLifecycle", func(t *testing.T) {
		start := time.Date(2030, 6, 10, 9, 0, 0, 0, time.UTC)
		e := &domain.Event{
			State:          domain.EventStateWaitingForApproval,
			Name:           "Siivous",
			StartTime:      start,
			EndTime:        start.Add(3 * time.Hour),
			Location:       domain.Point{Lon: 24.95, Lat: 60.17},
			ContractZoneID: zone.ID,
			OrganizerEmail: "org@example.com",
		}
		err := tx.WithTx(ctx, func(ctx context.Context) error {
			if err := zones.Lock(ctx, zone.ID); err != nil {
				return err
			}
			return events.Create(ctx, e)
		})
		require.NoError(t, err)

		got, err := events.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.InDelta(t, 24.95, got.Location.Lon, 1e-9)
		assert.Nil(t, got.ApprovalCreationReminderSentAt)

		overlapping, err := events.ListOverlapping(ctx, zone.ID, start.Add(-time.Hour), start.Add(time.Hour), nil)
		require.NoError(t, err)
		assert.Len(t, overlapping, 1)

		now := time.Date(2030, 6, 1, 7, 0, 0, 0, time.UTC)
		require.NoError(t, events.MarkApprovalRemindersSent(ctx, e.ID, true, false, now))
		require.NoError(t, events.MarkApprovalRemindersSent(ctx, e.ID, true, false, now.Add(time.Hour)))
		got, err = events.GetByID(ctx, e.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ApprovalCreationReminderSentAt)
		assert.True(t, got.ApprovalCreationReminderSentAt.Equal(now))

		cutoff := start.Add(4 * time.Hour)
		n, err := events.Anonymize(ctx, cutoff, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = events.CountAnonymizable(ctx, cutoff)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("LockRequiresTx", func(t *testing.T) {
		assert.Error(t, zones.Lock(ctx, zone.ID))
	})
}
