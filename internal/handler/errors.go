package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/response"
)

// handleError maps domain errors to the response envelope
func handleError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		details := gin.H{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		if ve.Code == domain.CodeUnavailableDates {
			details["unavailable_dates"] = ve.Dates
		}
		response.Fail(c, http.StatusBadRequest, ve.Code, ve.Message, details)
	case errors.Is(err, domain.ErrInvalidEventState):
		response.Fail(c, http.StatusBadRequest, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, domain.ErrEventNotFound):
		response.Fail(c, http.StatusNotFound, "EVENT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrZoneNotFound):
		response.Fail(c, http.StatusNotFound, "ZONE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrBlockedDateNotFound):
		response.Fail(c, http.StatusNotFound, "BLOCKED_DATE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrBlockedDateExists):
		response.Fail(c, http.StatusConflict, "BLOCKED_DATE_EXISTS", err.Error(), nil)
	default:
		response.InternalError(c, err)
	}
}

func invalidRequest(c *gin.Context, err error) {
	response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", gin.H{"error": err.Error()})
}
