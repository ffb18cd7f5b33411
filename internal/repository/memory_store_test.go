package repository

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
)

var testNow = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func square(minLon, minLat, maxLon, maxLat float64) *geojson.Geometry {
	return geojson.NewPolygonGeometry([][][]float64{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}})
}

func newTestStore(t *testing.T) (*MemoryStore, *domain.ContractZone) {
	t.Helper()
	store := NewMemoryStore(clock.NewFixed(testNow))
	zone := &domain.ContractZone{
		Name:     "Kallio",
		OriginID: "z-1",
		Boundary: square(24.90, 60.15, 25.00, 60.20),
		Active:   true,
		Email:    "contractor@example.com",
	}
	require.NoError(t, store.Zones().Create(context.Background(), zone))
	return store, zone
}

func TestMemoryZoneRepository_FindContaining(t *testing.T) {
	store, zone := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, "MultiPolygon", string(zone.Boundary.Type))

	overlap := &domain.ContractZone{Name: "Overlap", OriginID: "z-2", Boundary: square(24.95, 60.15, 25.05, 60.20), Active: false}
	require.NoError(t, store.Zones().Create(ctx, overlap))

	zones, err := store.Zones().FindContaining(ctx, domain.Point{Lon: 24.97, Lat: 60.17}, false)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, zone.ID, zones[0].ID)
	assert.Equal(t, overlap.ID, zones[1].ID)

	zones, err = store.Zones().FindContaining(ctx, domain.Point{Lon: 24.97, Lat: 60.17}, true)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, zone.ID, zones[0].ID)

	zones, err = store.Zones().FindContaining(ctx, domain.Point{Lon: 23.0, Lat: 60.17}, false)
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestMemoryBlockedDateRepository(t *testing.T) {
	store, zone := newTestStore(t)
	ctx := context.Background()
	repo := store.BlockedDates()

	d := civil.Date{Year: 2024, Month: 6, Day: 12}
	bd := &domain.BlockedDate{ContractZoneID: zone.ID, Date: d}
	require.NoError(t, repo.Create(ctx, bd))
	assert.NotZero(t, bd.ID)

	err := repo.Create(ctx, &domain.BlockedDate{ContractZoneID: zone.ID, Date: d})
	assert.ErrorIs(t, err, domain.ErrBlockedDateExists)

	err = repo.Create(ctx, &domain.BlockedDate{ContractZoneID: 999, Date: d})
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)

	list, err := repo.ListByZone(ctx, zone.ID, calendar.NewRange(d.AddDays(-1), d.AddDays(1)))
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = repo.ListByZone(ctx, zone.ID, calendar.NewRange(d.AddDays(1), d.AddDays(5)))
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, repo.Delete(ctx, bd.ID))
	assert.ErrorIs(t, repo.Delete(ctx, bd.ID), domain.ErrBlockedDateNotFound)
}

func TestMemoryEventRepository_ReminderTimestampsAreSetOnce(t *testing.T) {
	store, zone := newTestStore(t)
	ctx := context.Background()
	repo := store.Events()

	e := &domain.Event{
		State:          domain.EventStateWaitingForApproval,
		Name:           "Siivous",
		StartTime:      testNow.Add(10 * 24 * time.Hour),
		EndTime:        testNow.Add(10*24*time.Hour + 3*time.Hour),
		ContractZoneID: zone.ID,
	}
	require.NoError(t, repo.Create(ctx, e))

	first := testNow
	require.NoError(t, repo.MarkApprovalRemindersSent(ctx, e.ID, true, false, first))
	require.NoError(t, repo.MarkApprovalRemindersSent(ctx, e.ID, true, true, first.Add(time.Hour)))

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ApprovalCreationReminderSentAt)
	assert.True(t, got.ApprovalCreationReminderSentAt.Equal(first))
	require.NotNil(t, got.ApprovalDeadlineReminderSentAt)
	assert.True(t, got.ApprovalDeadlineReminderSentAt.Equal(first.Add(time.Hour)))

	// Update must not clear reminder timestamps
	got.ApprovalCreationReminderSentAt = nil
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.NotNil(t, again.ApprovalCreationReminderSentAt)

	e.State = domain.EventStateApproved
	require.NoError(t, repo.Update(ctx, e))
	changed, err := repo.MarkEventReminderSent(ctx, e.ID, first)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkEventReminderSent(ctx, e.ID, first)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMemoryEventRepository_SweepListsOnlyUpcoming(t *testing.T) {
	store, zone := newTestStore(t)
	ctx := context.Background()
	repo := store.Events()

	newEvent := func(state domain.EventState, start time.Time) *domain.Event {
		e := &domain.Event{State: state, ContractZoneID: zone.ID, StartTime: start, EndTime: start.Add(3 * time.Hour)}
		require.NoError(t, repo.Create(ctx, e))
		return e
	}
	pending := newEvent(domain.EventStateWaitingForApproval, testNow.Add(48*time.Hour))
	approved := newEvent(domain.EventStateApproved, testNow.Add(72*time.Hour))
	newEvent(domain.EventStateWaitingForApproval, testNow.Add(-time.Hour))
	newEvent(domain.EventStateApproved, testNow)
	reminded := newEvent(domain.EventStateApproved, testNow.Add(96*time.Hour))
	_, err := repo.MarkEventReminderSent(ctx, reminded.ID, testNow)
	require.NoError(t, err)

	got, err := repo.ListPendingApproval(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	got, err = repo.ListUpcomingWithoutReminder(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, pending.ID, got[0].ID)
	assert.Equal(t, approved.ID, got[1].ID)
}

func TestMemoryEventRepository_ListOverlapping(t *testing.T) {
	store, zone := newTestStore(t)
	ctx := context.Background()
	repo := store.Events()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	inside := &domain.Event{ContractZoneID: zone.ID, StartTime: day.Add(10 * time.Hour), EndTime: day.Add(12 * time.Hour)}
	before := &domain.Event{ContractZoneID: zone.ID, StartTime: day.Add(-48 * time.Hour), EndTime: day.Add(-47 * time.Hour)}
	require.NoError(t, repo.Create(ctx, inside))
	require.NoError(t, repo.Create(ctx, before))

	got, err := repo.ListOverlapping(ctx, zone.ID, day, day.Add(24*time.Hour), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)

	got, err = repo.ListOverlapping(ctx, zone.ID, day, day.Add(24*time.Hour), &inside.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryEventRepository_Anonymize(t *testing.T) {
	store, zone := newTestStore(t)
	ctx := context.Background()
	repo := store.Events()

	old := &domain.Event{
		Name:           "Old",
		ContractZoneID: zone.ID,
		StartTime:      testNow.Add(-100 * 24 * time.Hour),
		EndTime:        testNow.Add(-91 * 24 * time.Hour),
		OrganizerEmail: "org@example.com",
		OrganizerPhone: "040123",
		Location:       domain.Point{Lon: 24.95, Lat: 60.17},
	}
	recent := &domain.Event{
		Name:           "Recent",
		ContractZoneID: zone.ID,
		StartTime:      testNow.Add(-10 * 24 * time.Hour),
		EndTime:        testNow.Add(-9 * 24 * time.Hour),
		OrganizerEmail: "org@example.com",
	}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, recent))

	cutoff := testNow.Add(-90 * 24 * time.Hour)
	n, err := repo.CountAnonymizable(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Anonymize(ctx, cutoff, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnonymizedOrganizerEmail, got.OrganizerEmail)
	assert.Equal(t, domain.AnonymizedEventName, got.Name)
	assert.Empty(t, got.OrganizerPhone)
	assert.True(t, got.StartTime.Equal(old.StartTime))
	assert.Equal(t, old.Location, got.Location)

	n, err = repo.Anonymize(ctx, cutoff, testNow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_WithTxNested(t *testing.T) {
	store := NewMemoryStore(nil)
	calls := 0
	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		return store.WithTx(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
