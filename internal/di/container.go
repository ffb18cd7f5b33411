package di

import (
	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/handler"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/notification"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/repository"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/service"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/worker"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/database"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/kafka"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/redis"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/retry"
)

// Container holds all dependencies of the API and the batch jobs
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	Settings config.EventsConfig
	Clock    clock.Clock

	// Repositories
	Transactor      repository.Transactor
	ZoneRepo        repository.ZoneRepository
	BlockedDateRepo repository.BlockedDateRepository
	EventRepo       repository.EventRepository

	// Notifications
	Dispatcher notification.Dispatcher
	Notifier   *notification.Notifier

	// Services
	ZoneResolver        service.ZoneResolver
	AvailabilityService service.AvailabilityService
	AdmissionValidator  service.AdmissionValidator
	EventService        service.EventService
	ZoneService         service.ZoneService

	// Batch jobs
	JobLock                *worker.JobLock
	ApprovalReminderWorker *worker.ApprovalReminderWorker
	EventReminderWorker    *worker.EventReminderWorker
	AnonymizeWorker        *worker.AnonymizeWorker

	// Handlers
	HealthHandler *handler.HealthHandler
	EventHandler  *handler.EventHandler
	ZoneHandler   *handler.ZoneHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	// Store backs the repositories when DB is nil
	Store *repository.MemoryStore
	// Dispatcher overrides the driver chosen from config
	Dispatcher notification.Dispatcher
	Calendar   *calendar.Calendar
	Clock      clock.Clock
	Logger     *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	log := cfg.Logger

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Settings: cfg.Config.Events,
		Clock:    clk,
	}
	loc := c.Settings.Location()

	// Initialize repositories
	if cfg.DB != nil {
		pool := cfg.DB.Pool()
		c.Transactor = repository.NewPostgresTransactor(pool)
		c.ZoneRepo = repository.NewPostgresZoneRepository(pool)
		c.BlockedDateRepo = repository.NewPostgresBlockedDateRepository(pool)
		c.EventRepo = repository.NewPostgresEventRepository(pool)
	} else {
		store := cfg.Store
		if store == nil {
			store = repository.NewMemoryStore(clk)
		}
		c.Transactor = store
		c.ZoneRepo = store.Zones()
		c.BlockedDateRepo = store.BlockedDates()
		c.EventRepo = store.Events()
	}

	// Initialize notifications
	c.Dispatcher = cfg.Dispatcher
	if c.Dispatcher == nil {
		c.Dispatcher = newDispatcher(cfg.Config, cfg.Producer, log)
	}
	c.Notifier = notification.NewNotifier(c.Dispatcher, cfg.Config.Notification.OfficialEmails, loc, log)

	// Initialize services
	c.ZoneResolver = service.NewZoneResolver(c.ZoneRepo, log)
	c.AvailabilityService = service.NewAvailabilityService(c.BlockedDateRepo, c.EventRepo, c.Settings, clk)
	c.AdmissionValidator = service.NewAdmissionValidator(c.ZoneResolver, c.AvailabilityService, c.ZoneRepo, c.Settings, clk, log)
	c.EventService = service.NewEventService(&service.EventServiceConfig{
		Transactor: c.Transactor,
		Zones:      c.ZoneRepo,
		Events:     c.EventRepo,
		Resolver:   c.ZoneResolver,
		Validator:  c.AdmissionValidator,
		Publisher:  c.Notifier,
		Logger:     log,
	})
	c.ZoneService = service.NewZoneService(c.ZoneRepo, c.BlockedDateRepo, c.ZoneResolver, c.AvailabilityService, log)

	// Initialize batch jobs
	var redisLocker worker.RedisLocker
	if cfg.Redis != nil {
		redisLocker = cfg.Redis
	}
	var advisoryLocker worker.AdvisoryLocker
	if cfg.DB != nil {
		advisoryLocker = cfg.DB
	}
	c.JobLock = worker.NewJobLock(redisLocker, advisoryLocker, cfg.Config.Scheduler.LockTTL, log)

	reminderCfg := &worker.ReminderWorkerConfig{
		Events:     c.EventRepo,
		Zones:      c.ZoneRepo,
		Dispatcher: c.Dispatcher,
		Calendar:   cfg.Calendar,
		Settings:   c.Settings,
		Clock:      clk,
		Lock:       c.JobLock,
		Logger:     log,
	}
	c.ApprovalReminderWorker = worker.NewApprovalReminderWorker(reminderCfg)
	c.EventReminderWorker = worker.NewEventReminderWorker(reminderCfg)
	c.AnonymizeWorker = worker.NewAnonymizeWorker(c.EventRepo, clk, c.JobLock, log)

	// Initialize handlers
	checks := map[string]handler.HealthChecker{"database": nil, "redis": nil}
	if cfg.DB != nil {
		checks["database"] = cfg.DB
	}
	if cfg.Redis != nil {
		checks["redis"] = cfg.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.EventHandler = handler.NewEventHandler(c.EventService)
	c.ZoneHandler = handler.NewZoneHandler(c.ZoneService, c.Settings, clk)

	return c
}

func newDispatcher(cfg *config.Config, producer *kafka.Producer, log *logger.Logger) notification.Dispatcher {
	site := notification.SiteContext{
		SiteName: cfg.Notification.SiteName,
		SiteURL:  cfg.Notification.SiteURL,
	}
	if cfg.Notification.Driver == "log" || producer == nil {
		return notification.NewLogDispatcher(site, log)
	}
	return notification.NewKafkaDispatcher(producer, notification.KafkaDispatcherConfig{
		Topic:  cfg.Notification.Topic,
		Site:   site,
		Retry:  retry.DefaultPolicy(),
		Source: cfg.App.Name,
	}, log)
}
