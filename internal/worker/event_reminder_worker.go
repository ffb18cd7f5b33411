package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/notification"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// EventReminderJob is the lock name of the event reminder sweep
const EventReminderJob = "send-event-reminders"

// EventReminderWorker tells zone contacts that an event starts soon
type EventReminderWorker struct {
	cfg *ReminderWorkerConfig
	loc *time.Location
	log *logger.Logger
}

// NewEventReminderWorker creates a new event reminder worker
func NewEventReminderWorker(cfg *ReminderWorkerConfig) *EventReminderWorker {
	cfg = cfg.withDefaults()
	return &EventReminderWorker{
		cfg: cfg,
		loc: cfg.Settings.Location(),
		log: cfg.Logger.With(zap.String("job", EventReminderJob)),
	}
}

// RunOnce sweeps upcoming events once
func (w *EventReminderWorker) RunOnce(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{StartedAt: time.Now()}
	if w.cfg.Settings.ReminderDaysInAdvance < 0 {
		w.log.Info("Event reminders disabled")
		stats.FinishedAt = stats.StartedAt
		return stats, nil
	}

	release, err := w.cfg.Lock.Acquire(ctx, EventReminderJob)
	if err != nil {
		return nil, err
	}
	defer release()

	now := w.cfg.Clock.Now()
	today := calendar.LocalDate(now, w.loc)

	events, err := w.cfg.Events.ListUpcomingWithoutReminder(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}

	zones := newZoneCache(w.cfg.Zones)
	for _, e := range events {
		stats.Checked++

		day, err := w.cfg.Calendar.ShiftBackward(calendar.LocalDate(e.StartTime, w.loc).AddDays(-w.cfg.Settings.ReminderDaysInAdvance))
		if err != nil {
			return stats, err
		}
		if day != today {
			continue
		}
		w.remind(ctx, e, zones, now, stats)
	}

	stats.FinishedAt = time.Now()
	metrics.RecordJobRun(ctx, EventReminderJob, stats.Duration().Seconds(), stats.Failed, nil)
	w.log.Info("Event reminder sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("sent", stats.Sent),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (w *EventReminderWorker) remind(ctx context.Context, e *domain.Event, zones *zoneCache, now time.Time, stats *RunStats) {
	log := w.log.With(zap.String("event_id", e.ID.String()), zap.Int64("zone_id", e.ContractZoneID))

	zone, err := zones.get(ctx, e.ContractZoneID)
	if err != nil {
		log.Error("Failed to load contract zone", zap.Error(err))
		stats.Failed++
		return
	}
	recipients := zone.ContactEmails()
	if len(recipients) == 0 {
		log.Warn("Contract zone has no contact email, event reminder not sent",
			zap.Bool("integrity_warning", true))
		stats.Skipped++
		return
	}

	data := notification.EventContext(e, zone, w.loc)
	if err := sendAll(ctx, w.cfg.Dispatcher, recipients, domain.NotificationEventReminder, data); err != nil {
		log.Error("Failed to send event reminder", zap.Error(err))
		stats.Failed++
		return
	}

	changed, err := w.cfg.Events.MarkEventReminderSent(ctx, e.ID, now)
	if err != nil {
		log.Error("Event reminder sent but timestamp not saved", zap.Error(err))
		stats.Failed++
		return
	}
	if !changed {
		log.Warn("Event reminder timestamp was already set")
	}
	stats.Sent++
}
