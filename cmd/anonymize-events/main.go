package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/di"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/worker"
)

func main() {
	olderThanDays := flag.Int("older-than-days", worker.DefaultRetentionDays,
		"anonymize events that ended at least this many days ago")
	dryRun := flag.Bool("dry-run", false, "only count eligible events")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := di.Bootstrap(ctx, worker.AnonymizeJob)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer app.Close()

	// The flag wins over EVENTS_ANONYMIZE_AFTER_DAYS, which defaults to 90
	days := app.Config.Events.AnonymizeAfterDays
	if flagSet("older-than-days") {
		days = *olderThanDays
	}
	if days < 0 {
		fmt.Fprintf(os.Stderr, "--older-than-days must not be negative, got %d\n", days)
		app.Close()
		os.Exit(2)
	}

	result, err := app.Container.AnonymizeWorker.Run(ctx, days, *dryRun)
	if errors.Is(err, worker.ErrJobRunning) {
		app.Logger.Info("Another instance is anonymizing events, exiting")
		return
	}
	if err != nil {
		app.Logger.Error("Anonymization failed", zap.Error(err))
		app.Close()
		os.Exit(1)
	}

	fmt.Printf("Eligible events for anonymization (end_time <= %s): %d\n",
		result.Cutoff.Format(time.RFC3339), result.Eligible)
	if result.DryRun {
		fmt.Println("Dry run: no changes applied")
		return
	}
	fmt.Printf("Anonymized %d events\n", result.Anonymized)
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
