package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/notification"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
)

// Monday 2024-05-27 12:00 in Helsinki
var testNow = time.Date(2024, 5, 27, 9, 0, 0, 0, time.UTC)

var insidePoint = domain.Point{Lon: 24.95, Lat: 60.17}

type testEnv struct {
	cfg      config.EventsConfig
	loc      *time.Location
	store    *repository.MemoryStore
	zone     *domain.ContractZone
	recorder *notification.Recorder
	events   EventService
	zones    ZoneService
	avail    AvailabilityService
}

func square(minLon, minLat, maxLon, maxLat float64) *geojson.Geometry {
	return geojson.NewPolygonGeometry([][][]float64{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultEventsConfig()
	loc := cfg.Location()
	clk := clock.NewFixed(testNow)

	store := repository.NewMemoryStore(clk)
	zone := &domain.ContractZone{
		Name:           "Kallio",
		OriginID:       "z-1",
		Boundary:       square(24.90, 60.15, 25.00, 60.20),
		Active:         true,
		Email:          "a@example.com",
		SecondaryEmail: "b@example.com",
	}
	require.NoError(t, store.Zones().Create(context.Background(), zone))

	recorder := notification.NewRecorder()
	notifier := notification.NewNotifier(recorder, []string{"official@example.com"}, loc, nil)

	resolver := NewZoneResolver(store.Zones(), nil)
	avail := NewAvailabilityService(store.BlockedDates(), store.Events(), cfg, clk)
	validator := NewAdmissionValidator(resolver, avail, store.Zones(), cfg, clk, nil)

	return &testEnv{
		cfg:      cfg,
		loc:      loc,
		store:    store,
		zone:     zone,
		recorder: recorder,
		avail:    avail,
		events: NewEventService(&EventServiceConfig{
			Transactor: store,
			Zones:      store.Zones(),
			Events:     store.Events(),
			Resolver:   resolver,
			Validator:  validator,
			Publisher:  notifier,
		}),
		zones: NewZoneService(store.Zones(), store.BlockedDates(), resolver, avail, nil),
	}
}

func (e *testEnv) at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, e.loc)
	require.NoError(t, err)
	return ts
}

func (e *testEnv) seedEvent(t *testing.T, start, end time.Time) *domain.Event {
	t.Helper()
	ev := &domain.Event{
		State:          domain.EventStateApproved,
		Name:           "seeded",
		StartTime:      start,
		EndTime:        end,
		Location:       insidePoint,
		ContractZoneID: e.zone.ID,
		OrganizerEmail: "seed@example.com",
	}
	require.NoError(t, e.store.Events().Create(context.Background(), ev))
	return ev
}

func draftAt(start, end time.Time, p domain.Point) *domain.EventDraft {
	name := "Puistosiivous"
	email := "org@example.com"
	return &domain.EventDraft{
		Name:           &name,
		StartTime:      &start,
		EndTime:        &end,
		Location:       &p,
		OrganizerEmail: &email,
	}
}

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func requireValidationCode(t *testing.T, err error, code string) *domain.ValidationError {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Equal(t, code, ve.Code)
	return ve
}

func TestCreateEvent_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	draft := draftAt(env.at(t, "2024-06-10 10:00"), env.at(t, "2024-06-10 14:00"), insidePoint)
	approved := domain.EventStateApproved
	draft.State = &approved

	ev, err := env.events.CreateEvent(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStateWaitingForApproval, ev.State)
	assert.Equal(t, env.zone.ID, ev.ContractZoneID)

	stored, err := env.store.Events().GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStateWaitingForApproval, stored.State)

	// both zone contacts and the official
	assert.Len(t, env.recorder.ByTemplate(domain.NotificationEventCreated), 3)
	assert.Len(t, env.recorder.ByTemplate(domain.NotificationEventReceived), 1)
}

// A date already carrying the zone's event limit rejects a new event on it.
func TestCreateEvent_CapacityReached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.seedEvent(t, env.at(t, "2024-06-10 09:00"), env.at(t, "2024-06-10 12:00"))
	}

	_, err := env.events.CreateEvent(ctx, draftAt(env.at(t, "2024-06-09 18:00"), env.at(t, "2024-06-10 10:00"), insidePoint))
	ve := requireValidationCode(t, err, domain.CodeUnavailableDates)
	assert.Equal(t, []civil.Date{date("2024-06-10")}, ve.Dates)
	assert.Equal(t, "Unavailable dates: [2024-06-10]", ve.Message)

	_, total, err := env.store.Events().List(ctx, nil, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, env.recorder.Messages())
}

// A point outside every active zone is refused and nothing is stored.
func TestCreateEvent_OutsideEveryZone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.events.CreateEvent(ctx, draftAt(env.at(t, "2024-06-10 10:00"), env.at(t, "2024-06-10 14:00"), domain.Point{Lon: 23.0, Lat: 61.0}))
	ve := requireValidationCode(t, err, domain.CodeNoContractZone)
	assert.Equal(t, "Location must be inside a contract zone.", ve.Message)

	_, total, err := env.store.Events().List(ctx, nil, 100, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateEvent_InactiveZone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.zone.Active = false
	require.NoError(t, env.store.Zones().UpdateContacts(ctx, env.zone))

	_, err := env.events.CreateEvent(ctx, draftAt(env.at(t, "2024-06-10 10:00"), env.at(t, "2024-06-10 14:00"), insidePoint))
	requireValidationCode(t, err, domain.CodeNoContractZone)
}

func TestCreateEvent_TimeRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end string
		code       string
	}{
		{"end before start", "2024-06-10 14:00", "2024-06-10 10:00", domain.CodeInvalidTimeRange},
		{"start too far", "2024-08-27 10:00", "2024-08-27 12:00", domain.CodeStartTooFar},
		{"last disallowed minute", "2024-06-02 23:59", "2024-06-03 04:00", domain.CodeStartTooSoon},
		{"too long", "2024-06-10 10:00", "2024-06-17 10:01", domain.CodeDurationTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.events.CreateEvent(ctx, draftAt(env.at(t, tt.start), env.at(t, tt.end), insidePoint))
			requireValidationCode(t, err, tt.code)
		})
	}
}

func TestCreateEvent_FirstAllowedStart(t *testing.T) {
	env := newTestEnv(t)
	// today is 2024-05-27; six full days must pass
	_, err := env.events.CreateEvent(context.Background(),
		draftAt(env.at(t, "2024-06-03 00:00"), env.at(t, "2024-06-03 06:00"), insidePoint))
	require.NoError(t, err)
}

func TestCreateEvent_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	start := env.at(t, "2024-06-10 10:00")
	_, err := env.events.CreateEvent(context.Background(), &domain.EventDraft{StartTime: &start})
	ve := requireValidationCode(t, err, domain.CodeMissingField)
	assert.Equal(t, "name", ve.Field)
}

func TestCreateEvent_BlockedDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.zones.BlockDate(ctx, &domain.BlockedDate{ContractZoneID: env.zone.ID, Date: date("2024-06-12"), Reason: "festival"}))

	_, err := env.events.CreateEvent(ctx, draftAt(env.at(t, "2024-06-10 10:00"), env.at(t, "2024-06-13 10:00"), insidePoint))
	ve := requireValidationCode(t, err, domain.CodeUnavailableDates)
	assert.Equal(t, []civil.Date{date("2024-06-12")}, ve.Dates)
}

func TestUpdateEvent_ExcludesItself(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedEvent(t, env.at(t, "2024-06-10 09:00"), env.at(t, "2024-06-10 12:00"))
	env.seedEvent(t, env.at(t, "2024-06-10 09:00"), env.at(t, "2024-06-10 12:00"))
	own := env.seedEvent(t, env.at(t, "2024-06-10 09:00"), env.at(t, "2024-06-10 12:00"))

	newStart := env.at(t, "2024-06-10 10:00")
	updated, err := env.events.UpdateEvent(ctx, own.ID, &domain.EventDraft{StartTime: &newStart})
	require.NoError(t, err)
	assert.True(t, updated.StartTime.Equal(newStart))
}

func TestUpdateEvent_ApprovalNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev, err := env.events.CreateEvent(ctx, draftAt(env.at(t, "2024-06-10 10:00"), env.at(t, "2024-06-10 14:00"), insidePoint))
	require.NoError(t, err)
	env.recorder.Reset()

	approved := domain.EventStateApproved
	updated, err := env.events.UpdateEvent(ctx, ev.ID, &domain.EventDraft{State: &approved})
	require.NoError(t, err)
	assert.Equal(t, domain.EventStateApproved, updated.State)
	assert.Len(t, env.recorder.ByTemplate(domain.NotificationEventApprovedToOrganizer), 1)
	assert.Len(t, env.recorder.ByTemplate(domain.NotificationEventApprovedToContractor), 2)
	assert.Len(t, env.recorder.ByTemplate(domain.NotificationEventApprovedToOfficial), 1)

	// approving again is silent
	env.recorder.Reset()
	_, err = env.events.UpdateEvent(ctx, ev.ID, &domain.EventDraft{State: &approved})
	require.NoError(t, err)
	assert.Empty(t, env.recorder.Messages())
}

func TestUpdateEvent_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.events.UpdateEvent(context.Background(), uuid.New(), &domain.EventDraft{})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCreateEvent_NotificationFailureKeepsEvent(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.Err = errors.New("broker down")

	ev, err := env.events.CreateEvent(context.Background(), draftAt(env.at(t, "2024-06-10 10:00"), env.at(t, "2024-06-10 14:00"), insidePoint))
	require.NoError(t, err)
	_, err = env.store.Events().GetByID(context.Background(), ev.ID)
	assert.NoError(t, err)
}

func TestUnavailableDates_BlockedDatesIncluded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, d := range []string{"2024-06-01", "2024-07-15", "2024-08-20"} {
		require.NoError(t, env.store.BlockedDates().Create(ctx, &domain.BlockedDate{ContractZoneID: env.zone.ID, Date: date(d)}))
	}
	// before today, outside the default window
	require.NoError(t, env.store.BlockedDates().Create(ctx, &domain.BlockedDate{ContractZoneID: env.zone.ID, Date: date("2024-05-01")}))

	dates, err := env.avail.UnavailableDates(ctx, env.zone.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date("2024-06-01"), date("2024-07-15"), date("2024-08-20")}, dates)

	rng := calendar.NewRange(date("2024-04-01"), date("2024-06-30"))
	dates, err = env.avail.UnavailableDates(ctx, env.zone.ID, &rng, nil)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date("2024-05-01"), date("2024-06-01")}, dates)
}

func TestUnavailableDates_CapacityThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedEvent(t, env.at(t, "2024-06-10 09:00"), env.at(t, "2024-06-10 12:00"))
	env.seedEvent(t, env.at(t, "2024-06-10 13:00"), env.at(t, "2024-06-10 15:00"))

	rng := calendar.NewRange(date("2024-06-01"), date("2024-06-30"))
	dates, err := env.avail.UnavailableDates(ctx, env.zone.ID, &rng, nil)
	require.NoError(t, err)
	assert.Empty(t, dates, "below the maximum the date stays available")

	third := env.seedEvent(t, env.at(t, "2024-06-09 10:00"), env.at(t, "2024-06-11 10:00"))
	dates, err = env.avail.UnavailableDates(ctx, env.zone.ID, &rng, nil)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date("2024-06-10")}, dates)

	dates, err = env.avail.UnavailableDates(ctx, env.zone.ID, &rng, &third.ID)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestUnavailableDates_UsesLocalDates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 22:30 UTC on the 9th is 01:30 on the 10th in Helsinki
	for i := 0; i < 3; i++ {
		start := time.Date(2024, 6, 9, 22, 30, 0, 0, time.UTC)
		env.seedEvent(t, start, start.Add(2*time.Hour))
	}

	rng := calendar.NewRange(date("2024-06-01"), date("2024-06-30"))
	dates, err := env.avail.UnavailableDates(ctx, env.zone.ID, &rng, nil)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date("2024-06-10")}, dates)
}

func TestGeoQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.zones.GeoQuery(ctx, insidePoint)
	require.NoError(t, err)
	assert.Equal(t, env.zone.ID, res.Zone.ID)

	_, err = env.zones.GeoQuery(ctx, domain.Point{Lon: 23.0, Lat: 61.0})
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
}

func TestBlockDate_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bd := &domain.BlockedDate{ContractZoneID: env.zone.ID, Date: date("2024-06-12")}
	require.NoError(t, env.zones.BlockDate(ctx, bd))
	err := env.zones.BlockDate(ctx, &domain.BlockedDate{ContractZoneID: env.zone.ID, Date: date("2024-06-12")})
	assert.True(t, domain.IsConflictError(err))

	err = env.zones.BlockDate(ctx, &domain.BlockedDate{ContractZoneID: 999, Date: date("2024-06-12")})
	assert.True(t, domain.IsNotFoundError(err))

	require.NoError(t, env.zones.UnblockDate(ctx, bd.ID))
}
