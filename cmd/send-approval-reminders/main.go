package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/di"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := di.Bootstrap(ctx, worker.ApprovalReminderJob)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	stats, err := app.Container.ApprovalReminderWorker.RunOnce(ctx)
	if errors.Is(err, worker.ErrJobRunning) {
		app.Logger.Info("Another instance is sending approval reminders, exiting")
		app.Close()
		return
	}
	if err != nil {
		app.Logger.Error("Approval reminder run failed", zap.Error(err))
		app.Close()
		os.Exit(1)
	}

	fmt.Printf("Approval reminders: checked %d, sent %d, skipped %d, failed %d\n",
		stats.Checked, stats.Sent, stats.Skipped, stats.Failed)
	app.Close()
}
