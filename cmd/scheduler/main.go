package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/di"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/worker"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

const serviceName = "haravajarjestelma-scheduler"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := di.Bootstrap(ctx, serviceName)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer app.Close()

	cfg := app.Config
	c := app.Container
	cronLog := cronLogger{log: app.Logger}

	scheduler := cron.New(
		cron.WithLocation(cfg.Events.Location()),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{worker.ApprovalReminderJob, cfg.Scheduler.ApprovalReminderSpec, func(ctx context.Context) error {
			_, err := c.ApprovalReminderWorker.RunOnce(ctx)
			return err
		}},
		{worker.EventReminderJob, cfg.Scheduler.EventReminderSpec, func(ctx context.Context) error {
			_, err := c.EventReminderWorker.RunOnce(ctx)
			return err
		}},
		{worker.AnonymizeJob, cfg.Scheduler.AnonymizeSpec, func(ctx context.Context) error {
			_, err := c.AnonymizeWorker.Run(ctx, cfg.Events.AnonymizeAfterDays, false)
			return err
		}},
	}

	for _, j := range jobs {
		if j.spec == "" {
			app.Logger.Info("Job disabled", zap.String("job", j.name))
			continue
		}
		job := j
		if _, err := scheduler.AddFunc(job.spec, func() { runJob(ctx, app.Logger, job.name, job.run) }); err != nil {
			app.Logger.Error("Invalid cron spec", zap.String("job", job.name), zap.String("spec", job.spec), zap.Error(err))
			app.Close()
			os.Exit(1)
		}
		app.Logger.Info("Job scheduled", zap.String("job", job.name), zap.String("spec", job.spec))
	}

	scheduler.Start()
	app.Logger.Info("Scheduler started", zap.String("time_zone", cfg.Events.TimeZone))

	<-ctx.Done()
	app.Logger.Info("Shutting down scheduler...")

	// Wait for running jobs
	select {
	case <-scheduler.Stop().Done():
	case <-time.After(30 * time.Second):
		app.Logger.Warn("Scheduler stopped with jobs still running")
	}
	app.Logger.Info("Scheduler exited gracefully")
}

func runJob(ctx context.Context, appLog *logger.Logger, name string, run func(context.Context) error) {
	err := run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrJobRunning):
		appLog.Info("Job running elsewhere, skipped", zap.String("job", name))
	default:
		appLog.Error("Job failed", zap.String("job", name), zap.Error(err))
	}
}

// cronLogger adapts the zap logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Zap().Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Zap().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
