package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/di"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/handler"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/middleware"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

const serviceName = "haravajarjestelma-api"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting API...")

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry disabled", zap.Error(err))
	}
	defer func() { _ = telemetry.Shutdown(context.Background()) }()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics disabled", zap.Error(err))
	}

	infra, err := di.Connect(ctx, cfg, serviceName, appLog)
	if err != nil {
		appLog.Fatal("Startup failed", zap.Error(err))
	}
	defer infra.Close()

	container := di.NewContainer(infra.ContainerConfig(cfg, appLog))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var idempotency, rateLimit gin.HandlerFunc
	rateCfg := middleware.RateLimitConfig{Rate: cfg.Server.RateLimit}
	if infra.Redis != nil {
		idempotency = middleware.Idempotency(middleware.IdempotencyConfig{Redis: infra.Redis})
		rateCfg.Redis = infra.Redis.Client()
	}
	if cfg.Server.RateLimit != "" {
		if rateLimit, err = middleware.RateLimit(rateCfg); err != nil {
			appLog.Fatal("Invalid rate limit", zap.Error(err))
		}
	}
	router := handler.NewRouter(&handler.RouterConfig{
		ServiceName:   serviceName,
		Logger:        appLog,
		EventHandler:  container.EventHandler,
		ZoneHandler:   container.ZoneHandler,
		HealthHandler: container.HealthHandler,
		Idempotency:   idempotency,
		RateLimit:     rateLimit,
		CORSOrigins:   cfg.Server.CORSAllowOrigins,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
