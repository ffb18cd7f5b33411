package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/middleware"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// RouterConfig contains the handlers and middleware mounted by NewRouter
type RouterConfig struct {
	ServiceName   string
	Logger        *logger.Logger
	EventHandler  *EventHandler
	ZoneHandler   *ZoneHandler
	HealthHandler *HealthHandler
	// Idempotency guards event creation. Nil disables it.
	Idempotency gin.HandlerFunc
	// RateLimit applies to every /api/v1 route. Nil disables it.
	RateLimit   gin.HandlerFunc
	CORSOrigins []string
}

// NewRouter builds the API engine
func NewRouter(cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	router.Use(middleware.Logger(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.CORS(cfg.CORSOrigins))
	}

	if cfg.HealthHandler != nil {
		router.GET("/health", cfg.HealthHandler.Health)
		router.GET("/ready", cfg.HealthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	if cfg.RateLimit != nil {
		v1.Use(cfg.RateLimit)
	}
	{
		events := v1.Group("/events")
		create := []gin.HandlerFunc{cfg.EventHandler.Create}
		if cfg.Idempotency != nil {
			create = append([]gin.HandlerFunc{cfg.Idempotency}, create...)
		}
		events.POST("", create...)
		events.GET("", cfg.EventHandler.List)
		events.GET("/:id", cfg.EventHandler.Get)
		events.PATCH("/:id", cfg.EventHandler.Update)

		zones := v1.Group("/contract-zones")
		zones.GET("", cfg.ZoneHandler.List)
		zones.GET("/:id", cfg.ZoneHandler.Get)
		zones.GET("/:id/unavailable-dates", cfg.ZoneHandler.UnavailableDates)
		zones.GET("/:id/blocked-dates", cfg.ZoneHandler.ListBlockedDates)
		zones.POST("/:id/blocked-dates", cfg.ZoneHandler.BlockDate)

		v1.DELETE("/blocked-dates/:id", cfg.ZoneHandler.UnblockDate)
		v1.GET("/geo-query", cfg.ZoneHandler.GeoQuery)
	}

	return router
}
