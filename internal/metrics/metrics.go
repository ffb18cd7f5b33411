package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

var (
	// Admission counters
	EventsAdmitted *telemetry.Counter
	EventsRejected *telemetry.Counter

	// Notification counters
	NotificationsSent   *telemetry.Counter
	NotificationsFailed *telemetry.Counter

	// Job counters
	JobRuns          *telemetry.Counter
	JobItemFailures  *telemetry.Counter
	EventsAnonymized *telemetry.Counter

	JobDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all metrics. Record* calls before Init are no-ops.
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&EventsAdmitted, telemetry.MetricOpts{Name: "events_admitted_total", Description: "Event writes that passed admission", Unit: "1"}},
		{&EventsRejected, telemetry.MetricOpts{Name: "events_rejected_total", Description: "Event writes rejected by admission", Unit: "1"}},
		{&NotificationsSent, telemetry.MetricOpts{Name: "notifications_sent_total", Description: "Notifications handed to the dispatcher", Unit: "1"}},
		{&NotificationsFailed, telemetry.MetricOpts{Name: "notifications_failed_total", Description: "Notifications the dispatcher rejected", Unit: "1"}},
		{&JobRuns, telemetry.MetricOpts{Name: "job_runs_total", Description: "Batch job runs", Unit: "1"}},
		{&JobItemFailures, telemetry.MetricOpts{Name: "job_item_failures_total", Description: "Events a batch job failed to process", Unit: "1"}},
		{&EventsAnonymized, telemetry.MetricOpts{Name: "events_anonymized_total", Description: "Events whose personal data was removed", Unit: "1"}},
	}
	for _, c := range counters {
		*c.dst, err = telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
	}

	JobDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "job_duration_seconds",
		Description: "Batch job wall time",
		Unit:        "s",
	})
	return err
}

// RecordAdmission records the outcome of an event write
func RecordAdmission(ctx context.Context, op string, rejectedCode string) {
	if rejectedCode == "" {
		EventsAdmitted.Add(ctx, 1, attribute.String("op", op))
		return
	}
	EventsRejected.Add(ctx, 1, attribute.String("op", op), attribute.String("code", rejectedCode))
}

// RecordNotification records one dispatch attempt
func RecordNotification(ctx context.Context, templateKey string, err error) {
	if err != nil {
		NotificationsFailed.Add(ctx, 1, attribute.String("template", templateKey))
		return
	}
	NotificationsSent.Add(ctx, 1, attribute.String("template", templateKey))
}

// RecordJobRun records a finished batch job
func RecordJobRun(ctx context.Context, job string, durationSeconds float64, failures int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	JobRuns.Add(ctx, 1, attribute.String("job", job), attribute.String("status", status))
	JobDuration.Record(ctx, durationSeconds, attribute.String("job", job))
	if failures > 0 {
		JobItemFailures.Add(ctx, int64(failures), attribute.String("job", job))
	}
}

// RecordAnonymized records redacted events
func RecordAnonymized(ctx context.Context, n int) {
	if n > 0 {
		EventsAnonymized.Add(ctx, int64(n))
	}
}
