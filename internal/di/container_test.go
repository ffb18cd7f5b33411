package di

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/handler"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/notification"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
)

func newTestContainer(t *testing.T) (*Container, *notification.Recorder, *domain.ContractZone) {
	t.Helper()
	clk := clock.NewFixed(time.Date(2024, 5, 27, 9, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clk)
	zone := &domain.ContractZone{
		Name:     "Kallio",
		OriginID: "z-1",
		Boundary: geojson.NewPolygonGeometry([][][]float64{{
			{24.90, 60.15}, {25.00, 60.15}, {25.00, 60.20}, {24.90, 60.20}, {24.90, 60.15},
		}}),
		Active: true,
		Email:  "contractor@example.com",
	}
	require.NoError(t, store.Zones().Create(context.Background(), zone))

	recorder := notification.NewRecorder()
	c := NewContainer(&ContainerConfig{
		Config: &config.Config{
			App:          config.AppConfig{Name: "haravajarjestelma"},
			Events:       config.DefaultEventsConfig(),
			Notification: config.NotificationConfig{Driver: "log"},
		},
		Store:      store,
		Dispatcher: recorder,
		Clock:      clk,
	})
	return c, recorder, zone
}

func post(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestContainer_EventLifecycleOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, recorder, zone := newTestContainer(t)
	router := handler.NewRouter(&handler.RouterConfig{
		ServiceName:   "test",
		EventHandler:  c.EventHandler,
		ZoneHandler:   c.ZoneHandler,
		HealthHandler: c.HealthHandler,
	})

	event := map[string]interface{}{
		"name":            "Kallion siivous",
		"start_time":      "2024-06-05T10:00:00+03:00",
		"end_time":        "2024-06-05T13:00:00+03:00",
		"location":        map[string]interface{}{"type": "Point", "coordinates": []float64{24.95, 60.17}},
		"organizer_email": "organizer@example.com",
	}

	w := post(t, router, "/api/v1/events", event)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, recorder.ByTemplate(domain.NotificationEventCreated), 1)
	assert.Len(t, recorder.ByTemplate(domain.NotificationEventReceived), 1)

	w = post(t, router, "/api/v1/contract-zones/1/blocked-dates", map[string]string{"date": "2024-06-06"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	event["start_time"] = "2024-06-06T10:00:00+03:00"
	event["end_time"] = "2024-06-06T13:00:00+03:00"
	w = post(t, router, "/api/v1/events", event)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, domain.CodeUnavailableDates, env.Error.Code)
	assert.Equal(t, []interface{}{"2024-06-06"}, env.Error.Details["unavailable_dates"])

	events, total, err := c.EventRepo.List(context.Background(), &repository.EventFilter{ContractZoneID: zone.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.EventStateWaitingForApproval, events[0].State)
}

func TestContainer_DefaultsWithoutInfrastructure(t *testing.T) {
	c := NewContainer(&ContainerConfig{
		Config: &config.Config{
			Events:       config.DefaultEventsConfig(),
			Notification: config.NotificationConfig{Driver: "kafka"},
		},
	})

	// no producer connected, so notifications fall back to the log
	_, ok := c.Dispatcher.(*notification.LogDispatcher)
	assert.True(t, ok)
	_, ok = c.Transactor.(*repository.MemoryStore)
	assert.True(t, ok)
	assert.NotNil(t, c.ApprovalReminderWorker)
	assert.NotNil(t, c.EventReminderWorker)
	assert.NotNil(t, c.AnonymizeWorker)

	release, err := c.JobLock.Acquire(context.Background(), "anything")
	require.NoError(t, err)
	release()
}
