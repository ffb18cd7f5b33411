package di

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// App is a fully wired batch process
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Infra     *Infra
	Container *Container
}

// Bootstrap loads configuration, initializes logging and telemetry, and
// connects the infrastructure of a one-shot command
func Bootstrap(ctx context.Context, serviceName string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLog := logger.Get()

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
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics disabled", zap.Error(err))
	}

	infra, err := Connect(ctx, cfg, serviceName, appLog)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    appLog,
		Infra:     infra,
		Container: NewContainer(infra.ContainerConfig(cfg, appLog)),
	}, nil
}

// Close releases connections and flushes telemetry and logs
func (a *App) Close() {
	a.Infra.Close()
	_ = telemetry.Shutdown(context.Background())
	logger.Sync()
}
