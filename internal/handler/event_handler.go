package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/dto"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/service"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/response"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// EventHandler handles event HTTP requests
type EventHandler struct {
	eventService service.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// Create handles POST /events
func (h *EventHandler) Create(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create")
	defer span.End()

	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		invalidRequest(c, err)
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		handleError(c, err)
		return
	}

	event, err := h.eventService.CreateEvent(ctx, draft)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", event.ID.String()))
	response.Created(c, dto.EventFromDomain(event))
}

// Get handles GET /events/:id
func (h *EventHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get")
	defer span.End()

	id, ok := parseEventID(c)
	if !ok {
		return
	}
	event, err := h.eventService.GetEvent(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, dto.EventFromDomain(event))
}

// Update handles PATCH /events/:id. Approval is an update of state.
func (h *EventHandler) Update(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.update")
	defer span.End()

	id, ok := parseEventID(c)
	if !ok {
		return
	}
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", id.String()))
	event, err := h.eventService.UpdateEvent(ctx, id, draft)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}
	response.Success(c, dto.EventFromDomain(event))
}

// List handles GET /events
func (h *EventHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.list")
	defer span.End()

	var q dto.ListEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidRequest(c, err)
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		handleError(c, err)
		return
	}
	if q.Limit <= 0 || q.Limit > maxPageLimit {
		q.Limit = defaultPageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	events, total, err := h.eventService.ListEvents(ctx, filter, q.Limit, q.Offset)
	if err != nil {
		telemetry.RecordError(span, err)
		handleError(c, err)
		return
	}

	data := make([]*dto.EventResponse, len(events))
	for i, e := range events {
		data[i] = dto.EventFromDomain(e)
	}
	response.Success(c, &dto.PaginatedResponse{
		Data:   data,
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
}

func parseEventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handleError(c, domain.ErrEventNotFound)
		return uuid.Nil, false
	}
	return id, true
}
