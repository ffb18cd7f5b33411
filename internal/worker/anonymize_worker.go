package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// AnonymizeJob is the lock name of the anonymization job
const AnonymizeJob = "anonymize-events"

// DefaultRetentionDays applies when neither flag nor config sets a retention
const DefaultRetentionDays = 90

// AnonymizeResult reports one anonymization run
type AnonymizeResult struct {
	Cutoff     time.Time
	Eligible   int
	Anonymized int
	DryRun     bool
}

// AnonymizeWorker redacts organizer data of events that ended long ago.
// Rows are never deleted.
type AnonymizeWorker struct {
	events repository.EventRepository
	clock  clock.Clock
	lock   *JobLock
	log    *logger.Logger
}

// NewAnonymizeWorker creates a new anonymize worker
func NewAnonymizeWorker(events repository.EventRepository, clk clock.Clock, lock *JobLock, log *logger.Logger) *AnonymizeWorker {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &AnonymizeWorker{
		events: events,
		clock:  clk,
		lock:   lock,
		log:    log.With(zap.String("job", AnonymizeJob)),
	}
}

// Run anonymizes events that ended at least olderThanDays ago. With dryRun
// it only counts them.
func (w *AnonymizeWorker) Run(ctx context.Context, olderThanDays int, dryRun bool) (*AnonymizeResult, error) {
	if olderThanDays < 0 {
		return nil, fmt.Errorf("older-than-days must not be negative, got %d", olderThanDays)
	}

	release, err := w.lock.Acquire(ctx, AnonymizeJob)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	now := w.clock.Now()
	result := &AnonymizeResult{
		Cutoff: now.AddDate(0, 0, -olderThanDays),
		DryRun: dryRun,
	}

	result.Eligible, err = w.events.CountAnonymizable(ctx, result.Cutoff)
	if err != nil {
		metrics.RecordJobRun(ctx, AnonymizeJob, time.Since(started).Seconds(), 0, err)
		return nil, fmt.Errorf("failed to count anonymizable events: %w", err)
	}

	if !dryRun && result.Eligible > 0 {
		result.Anonymized, err = w.events.Anonymize(ctx, result.Cutoff, now)
		if err != nil {
			metrics.RecordJobRun(ctx, AnonymizeJob, time.Since(started).Seconds(), 0, err)
			return nil, fmt.Errorf("failed to anonymize events: %w", err)
		}
		metrics.RecordAnonymized(ctx, result.Anonymized)
	}

	metrics.RecordJobRun(ctx, AnonymizeJob, time.Since(started).Seconds(), 0, nil)
	w.log.Info("Anonymization finished",
		zap.Time("cutoff", result.Cutoff),
		zap.Int("eligible", result.Eligible),
		zap.Int("anonymized", result.Anonymized),
		zap.Bool("dry_run", dryRun),
	)
	return result, nil
}
