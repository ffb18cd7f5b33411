package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/metrics"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/notification"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
)

// ApprovalReminderJob is the lock name of the approval reminder sweep
const ApprovalReminderJob = "send-approval-reminders"

// ReminderWorkerConfig contains the collaborators of the reminder workers
type ReminderWorkerConfig struct {
	Events     repository.EventRepository
	Zones      repository.ZoneRepository
	Dispatcher notification.Dispatcher
	Calendar   *calendar.Calendar
	Settings   config.EventsConfig
	Clock      clock.Clock
	Lock       *JobLock
	Logger     *logger.Logger
}

func (c *ReminderWorkerConfig) withDefaults() *ReminderWorkerConfig {
	out := *c
	if out.Calendar == nil {
		out.Calendar = calendar.Default()
	}
	if out.Clock == nil {
		out.Clock = clock.NewSystem()
	}
	return &out
}

// ApprovalReminderWorker reminds zone contacts about events still waiting
// for approval, once after creation and once before the event
type ApprovalReminderWorker struct {
	cfg *ReminderWorkerConfig
	loc *time.Location
	log *logger.Logger

	mu        sync.Mutex
	totalSent int64
	lastRun   *RunStats
}

// NewApprovalReminderWorker creates a new approval reminder worker
func NewApprovalReminderWorker(cfg *ReminderWorkerConfig) *ApprovalReminderWorker {
	cfg = cfg.withDefaults()
	return &ApprovalReminderWorker{
		cfg: cfg,
		loc: cfg.Settings.Location(),
		log: cfg.Logger.With(zap.String("job", ApprovalReminderJob)),
	}
}

// RunOnce sweeps all pending events once. Item failures are counted, not
// returned; a broken holiday table aborts the sweep.
func (w *ApprovalReminderWorker) RunOnce(ctx context.Context) (*RunStats, error) {
	release, err := w.cfg.Lock.Acquire(ctx, ApprovalReminderJob)
	if err != nil {
		return nil, err
	}
	defer release()

	now := w.cfg.Clock.Now()
	today := calendar.LocalDate(now, w.loc)
	stats := &RunStats{StartedAt: time.Now()}

	events, err := w.cfg.Events.ListPendingApproval(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}

	zones := newZoneCache(w.cfg.Zones)
	for _, e := range events {
		stats.Checked++

		creationDue, deadlineDue, err := w.dueTriggers(e, today)
		if err != nil {
			return stats, err
		}
		if !creationDue && !deadlineDue {
			continue
		}

		w.remind(ctx, e, zones, creationDue, deadlineDue, now, stats)
	}

	stats.FinishedAt = time.Now()
	metrics.RecordJobRun(ctx, ApprovalReminderJob, stats.Duration().Seconds(), stats.Failed, nil)
	w.record(stats)
	w.log.Info("Approval reminder sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("sent", stats.Sent),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// dueTriggers reports which unsent triggers fall on today
func (w *ApprovalReminderWorker) dueTriggers(e *domain.Event, today civil.Date) (creation, deadline bool, err error) {
	s := w.cfg.Settings

	if s.ApprovalReminderDaysAfterCreation >= 0 && e.ApprovalCreationReminderSentAt == nil {
		day, err := w.cfg.Calendar.ShiftForward(calendar.LocalDate(e.CreatedAt, w.loc).AddDays(s.ApprovalReminderDaysAfterCreation))
		if err != nil {
			return false, false, err
		}
		creation = day == today
	}

	if s.ApprovalReminderDaysBeforeEvent >= 0 && e.ApprovalDeadlineReminderSentAt == nil {
		day, err := w.cfg.Calendar.ShiftBackward(calendar.LocalDate(e.StartTime, w.loc).AddDays(-s.ApprovalReminderDaysBeforeEvent))
		if err != nil {
			return false, false, err
		}
		deadline = day == today
	}

	return creation, deadline, nil
}

// remind sends one notification per contact and marks the due triggers only
// when every send succeeded
func (w *ApprovalReminderWorker) remind(ctx context.Context, e *domain.Event, zones *zoneCache, creation, deadline bool, now time.Time, stats *RunStats) {
	log := w.log.With(zap.String("event_id", e.ID.String()), zap.Int64("zone_id", e.ContractZoneID))

	zone, err := zones.get(ctx, e.ContractZoneID)
	if err != nil {
		log.Error("Failed to load contract zone", zap.Error(err))
		stats.Failed++
		return
	}
	recipients := zone.ContactEmails()
	if len(recipients) == 0 {
		log.Warn("Contract zone has no contact email, approval reminder not sent",
			zap.Bool("integrity_warning", true))
		stats.Skipped++
		return
	}

	data := notification.EventContext(e, zone, w.loc)
	if err := sendAll(ctx, w.cfg.Dispatcher, recipients, domain.NotificationEventPendingApprovalReminder, data); err != nil {
		log.Error("Failed to send approval reminder", zap.Error(err))
		stats.Failed++
		return
	}

	if err := w.cfg.Events.MarkApprovalRemindersSent(ctx, e.ID, creation, deadline, now); err != nil {
		log.Error("Approval reminder sent but timestamps not saved", zap.Error(err))
		stats.Failed++
		return
	}
	log.Info("Approval reminder sent",
		zap.Bool("creation_trigger", creation),
		zap.Bool("deadline_trigger", deadline),
		zap.Int("recipients", len(recipients)),
	)
	stats.Sent++
}

func (w *ApprovalReminderWorker) record(stats *RunStats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totalSent += int64(stats.Sent)
	w.lastRun = stats
}

// GetStats returns worker statistics
func (w *ApprovalReminderWorker) GetStats() *WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &WorkerStats{TotalSent: w.totalSent, LastRun: w.lastRun}
}

// WorkerStats holds cumulative worker statistics
type WorkerStats struct {
	TotalSent int64
	LastRun   *RunStats
}

// sendAll stops at the first failed send and wraps it as transient
func sendAll(ctx context.Context, d notification.Dispatcher, recipients []string, templateKey string, data map[string]any) error {
	for _, to := range recipients {
		err := d.Send(ctx, to, templateKey, data)
		metrics.RecordNotification(ctx, templateKey, err)
		if err != nil {
			return &domain.TransientDependencyError{Op: "send " + templateKey, Err: err}
		}
	}
	return nil
}

// zoneCache loads each zone once per sweep
type zoneCache struct {
	repo  repository.ZoneRepository
	zones map[int64]*domain.ContractZone
}

func newZoneCache(repo repository.ZoneRepository) *zoneCache {
	return &zoneCache{repo: repo, zones: make(map[int64]*domain.ContractZone)}
}

func (c *zoneCache) get(ctx context.Context, id int64) (*domain.ContractZone, error) {
	if z, ok := c.zones[id]; ok {
		return z, nil
	}
	z, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.zones[id] = z
	return z, nil
}
