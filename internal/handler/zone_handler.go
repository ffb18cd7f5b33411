package handler

import (
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/dto"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/service"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/response"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// ZoneHandler handles contract zone, availability and blocked date requests
type ZoneHandler struct {
	zoneService service.ZoneService
	settings    config.EventsConfig
	loc         *time.Location
	clock       clock.Clock
}

// NewZoneHandler creates a new zone handler
func NewZoneHandler(zoneService service.ZoneService, settings config.EventsConfig, clk clock.Clock) *ZoneHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &ZoneHandler{
		zoneService: zoneService,
		settings:    settings,
		loc:         settings.Location(),
		clock:       clk,
	}
}

// List handles GET /contract-zones. ?active=true limits to active zones,
// ?boundary=true includes geometries.
func (h *ZoneHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.list")
	defer span.End()

	zones, err := h.zoneService.ListZones(ctx, c.Query("active") == "true")
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	withBoundary := c.Query("boundary") == "true"
	data := make([]*dto.ZoneResponse, len(zones))
	for i, z := range zones {
		data[i] = dto.ZoneFromDomain(z, withBoundary)
	}
	response.Success(c, data)
}

// Get handles GET /contract-zones/:id
func (h *ZoneHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.get")
	defer span.End()

	id, ok := parseIntParam(c, "id", domain.ErrZoneNotFound)
	if !ok {
		return
	}
	zone, err := h.zoneService.GetZone(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, dto.ZoneFromDomain(zone, true))
}

// UnavailableDates handles GET /contract-zones/:id/unavailable-dates
func (h *ZoneHandler) UnavailableDates(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.unavailable_dates")
	defer span.End()

	id, ok := parseIntParam(c, "id", domain.ErrZoneNotFound)
	if !ok {
		return
	}
	rng, ok := h.bindRange(c)
	if !ok {
		return
	}

	dates, err := h.zoneService.UnavailableDates(ctx, id, rng)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, &dto.UnavailableDatesResponse{
		ContractZoneID:   id,
		UnavailableDates: nonNilDates(dates),
	})
}

// GeoQuery handles GET /geo-query?lat=&lon=
func (h *ZoneHandler) GeoQuery(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.geo_query")
	defer span.End()

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		response.BadRequest(c, "lat and lon query parameters are required")
		return
	}
	p := domain.Point{Lon: lon, Lat: lat}
	if err := p.Validate(); err != nil {
		handleError(c, err)
		return
	}

	result, err := h.zoneService.GeoQuery(ctx, p)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, &dto.GeoQueryResponse{
		ContractZone:     dto.ZoneFromDomain(result.Zone, false),
		UnavailableDates: nonNilDates(result.UnavailableDates),
	})
}

// ListBlockedDates handles GET /contract-zones/:id/blocked-dates
func (h *ZoneHandler) ListBlockedDates(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.list_blocked_dates")
	defer span.End()

	id, ok := parseIntParam(c, "id", domain.ErrZoneNotFound)
	if !ok {
		return
	}
	rng, ok := h.bindRange(c)
	if !ok {
		return
	}
	if rng == nil {
		def := service.DefaultWindow(h.settings, h.loc, h.clock.Now())
		rng = &def
	}

	blocked, err := h.zoneService.ListBlockedDates(ctx, id, *rng)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	data := make([]*dto.BlockedDateResponse, len(blocked))
	for i, bd := range blocked {
		data[i] = dto.BlockedDateFromDomain(bd)
	}
	response.Success(c, data)
}

// BlockDate handles POST /contract-zones/:id/blocked-dates
func (h *ZoneHandler) BlockDate(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.block_date")
	defer span.End()

	id, ok := parseIntParam(c, "id", domain.ErrZoneNotFound)
	if !ok {
		return
	}
	var req dto.BlockDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	bd, err := req.ToDomain(id)
	if err != nil {
		handleError(c, err)
		return
	}
	if err := h.zoneService.BlockDate(ctx, bd); err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Created(c, dto.BlockedDateFromDomain(bd))
}

// UnblockDate handles DELETE /blocked-dates/:id
func (h *ZoneHandler) UnblockDate(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.zone.unblock_date")
	defer span.End()

	id, ok := parseIntParam(c, "id", domain.ErrBlockedDateNotFound)
	if !ok {
		return
	}
	if err := h.zoneService.UnblockDate(ctx, id); err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ZoneHandler) bindRange(c *gin.Context) (*calendar.Range, bool) {
	var q dto.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidRequest(c, err)
		return nil, false
	}
	rng, err := q.ToRange(service.DefaultWindow(h.settings, h.loc, h.clock.Now()))
	if err != nil {
		handleError(c, err)
		return nil, false
	}
	return rng, true
}

func parseIntParam(c *gin.Context, name string, notFound error) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		handleError(c, notFound)
		return 0, false
	}
	return id, true
}

func nonNilDates(dates []civil.Date) []civil.Date {
	if dates == nil {
		return []civil.Date{}
	}
	return dates
}
