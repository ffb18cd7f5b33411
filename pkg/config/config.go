package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	OTel         OTelConfig         `mapstructure:"otel"`
	Events       EventsConfig       `mapstructure:"events"`
	Notification NotificationConfig `mapstructure:"notification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// CORSAllowOrigins lists browser origins; "*" allows any
	CORSAllowOrigins []string `mapstructure:"cors_allow_origins"`
	// RateLimit is a limiter rate such as "300-M"; empty disables it
	RateLimit string `mapstructure:"rate_limit"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// EventsConfig holds every scheduling threshold. It is built once at
// process start and handed to each component; nothing reads the
// environment after that.
type EventsConfig struct {
	MaxDaysToStart                    int    `mapstructure:"maximum_days_to_start"`
	MinDaysBeforeStart                int    `mapstructure:"minimum_days_before_start"`
	MaxDaysLength                     int    `mapstructure:"maximum_days_length"`
	MaxCountPerZone                   int    `mapstructure:"maximum_count_per_contract_zone"`
	ReminderDaysInAdvance             int    `mapstructure:"reminder_days_in_advance"`
	ApprovalReminderDaysAfterCreation int    `mapstructure:"approval_reminder_days_after_creation"`
	ApprovalReminderDaysBeforeEvent   int    `mapstructure:"approval_reminder_days_before_event"`
	AnonymizeAfterDays                int    `mapstructure:"anonymize_after_days"`
	TimeZone                          string `mapstructure:"time_zone"`

	location *time.Location
}

// Location returns the loaded TIME_ZONE, falling back to UTC
func (e *EventsConfig) Location() *time.Location {
	if e.location != nil {
		return e.location
	}
	if e.TimeZone != "" {
		if loc, err := time.LoadLocation(e.TimeZone); err == nil {
			e.location = loc
			return loc
		}
	}
	return time.UTC
}

// DefaultEventsConfig returns the production thresholds
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		MaxDaysToStart:                    90,
		MinDaysBeforeStart:                6,
		MaxDaysLength:                     7,
		MaxCountPerZone:                   3,
		ReminderDaysInAdvance:             2,
		ApprovalReminderDaysAfterCreation: 3,
		ApprovalReminderDaysBeforeEvent:   5,
		AnonymizeAfterDays:                90,
		TimeZone:                          "Europe/Helsinki",
	}
}

// NotificationConfig holds notification dispatch settings
type NotificationConfig struct {
	Driver         string   `mapstructure:"driver"` // kafka, log
	Topic          string   `mapstructure:"topic"`
	SiteName       string   `mapstructure:"site_name"`
	SiteURL        string   `mapstructure:"site_url"`
	OfficialEmails []string `mapstructure:"official_emails"`
}

// SchedulerConfig holds cron specs for the batch jobs
type SchedulerConfig struct {
	ApprovalReminderSpec string        `mapstructure:"approval_reminder_spec"`
	EventReminderSpec    string        `mapstructure:"event_reminder_spec"`
	AnonymizeSpec        string        `mapstructure:"anonymize_spec"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
}

// integer settings that must parse as integers; a typo here must stop the
// process instead of silently becoming zero.
var eventIntKeys = []string{
	"EVENT_MAXIMUM_DAYS_TO_START",
	"EVENT_MINIMUM_DAYS_BEFORE_START",
	"EVENT_MAXIMUM_DAYS_LENGTH",
	"EVENT_MAXIMUM_COUNT_PER_CONTRACT_ZONE",
	"EVENT_REMINDER_DAYS_IN_ADVANCE",
	"APPROVAL_REMINDER_DAYS_AFTER_CREATION",
	"APPROVAL_REMINDER_DAYS_BEFORE_EVENT",
	"EVENTS_ANONYMIZE_AFTER_DAYS",
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, the environment may carry everything
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "haravajarjestelma")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("SERVER_RATE_LIMIT", "300-M")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "haravajarjestelma")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 2)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	// Redis defaults
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "haravajarjestelma")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "haravajarjestelma")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Event thresholds
	d := DefaultEventsConfig()
	v.SetDefault("EVENT_MAXIMUM_DAYS_TO_START", d.MaxDaysToStart)
	v.SetDefault("EVENT_MINIMUM_DAYS_BEFORE_START", d.MinDaysBeforeStart)
	v.SetDefault("EVENT_MAXIMUM_DAYS_LENGTH", d.MaxDaysLength)
	v.SetDefault("EVENT_MAXIMUM_COUNT_PER_CONTRACT_ZONE", d.MaxCountPerZone)
	v.SetDefault("EVENT_REMINDER_DAYS_IN_ADVANCE", d.ReminderDaysInAdvance)
	v.SetDefault("APPROVAL_REMINDER_DAYS_AFTER_CREATION", d.ApprovalReminderDaysAfterCreation)
	v.SetDefault("APPROVAL_REMINDER_DAYS_BEFORE_EVENT", d.ApprovalReminderDaysBeforeEvent)
	v.SetDefault("EVENTS_ANONYMIZE_AFTER_DAYS", d.AnonymizeAfterDays)
	v.SetDefault("TIME_ZONE", d.TimeZone)

	// Notification defaults
	v.SetDefault("NOTIFICATION_DRIVER", "kafka")
	v.SetDefault("NOTIFICATION_TOPIC", "notifications")
	v.SetDefault("NOTIFICATION_SITE_NAME", "Haravajärjestelmä")
	v.SetDefault("NOTIFICATION_SITE_URL", "https://haravajarjestelma.hel.fi")
	v.SetDefault("NOTIFICATION_OFFICIAL_EMAILS", "")

	// Scheduler defaults
	v.SetDefault("SCHEDULER_APPROVAL_REMINDER_SPEC", "0 7 * * *")
	v.SetDefault("SCHEDULER_EVENT_REMINDER_SPEC", "0 7 * * *")
	v.SetDefault("SCHEDULER_ANONYMIZE_SPEC", "0 3 * * *")
	v.SetDefault("SCHEDULER_LOCK_TTL", "30m")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.CORSAllowOrigins = splitList(v.GetString("SERVER_CORS_ALLOW_ORIGINS"))
	cfg.Server.RateLimit = v.GetString("SERVER_RATE_LIMIT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Events
	ints := make(map[string]int, len(eventIntKeys))
	for _, key := range eventIntKeys {
		raw := v.Get(key)
		if raw == nil {
			return &ConfigurationError{Key: key, Reason: "missing"}
		}
		n, err := cast.ToIntE(raw)
		if err != nil {
			return &ConfigurationError{Key: key, Reason: fmt.Sprintf("not an integer: %v", raw)}
		}
		ints[key] = n
	}
	cfg.Events.MaxDaysToStart = ints["EVENT_MAXIMUM_DAYS_TO_START"]
	cfg.Events.MinDaysBeforeStart = ints["EVENT_MINIMUM_DAYS_BEFORE_START"]
	cfg.Events.MaxDaysLength = ints["EVENT_MAXIMUM_DAYS_LENGTH"]
	cfg.Events.MaxCountPerZone = ints["EVENT_MAXIMUM_COUNT_PER_CONTRACT_ZONE"]
	cfg.Events.ReminderDaysInAdvance = ints["EVENT_REMINDER_DAYS_IN_ADVANCE"]
	cfg.Events.ApprovalReminderDaysAfterCreation = ints["APPROVAL_REMINDER_DAYS_AFTER_CREATION"]
	cfg.Events.ApprovalReminderDaysBeforeEvent = ints["APPROVAL_REMINDER_DAYS_BEFORE_EVENT"]
	cfg.Events.AnonymizeAfterDays = ints["EVENTS_ANONYMIZE_AFTER_DAYS"]
	cfg.Events.TimeZone = v.GetString("TIME_ZONE")

	loc, err := time.LoadLocation(cfg.Events.TimeZone)
	if err != nil {
		return &ConfigurationError{Key: "TIME_ZONE", Reason: err.Error()}
	}
	cfg.Events.location = loc

	// Notification
	cfg.Notification.Driver = v.GetString("NOTIFICATION_DRIVER")
	cfg.Notification.Topic = v.GetString("NOTIFICATION_TOPIC")
	cfg.Notification.SiteName = v.GetString("NOTIFICATION_SITE_NAME")
	cfg.Notification.SiteURL = v.GetString("NOTIFICATION_SITE_URL")
	cfg.Notification.OfficialEmails = splitList(v.GetString("NOTIFICATION_OFFICIAL_EMAILS"))

	// Scheduler
	cfg.Scheduler.ApprovalReminderSpec = v.GetString("SCHEDULER_APPROVAL_REMINDER_SPEC")
	cfg.Scheduler.EventReminderSpec = v.GetString("SCHEDULER_EVENT_REMINDER_SPEC")
	cfg.Scheduler.AnonymizeSpec = v.GetString("SCHEDULER_ANONYMIZE_SPEC")
	cfg.Scheduler.LockTTL = v.GetDuration("SCHEDULER_LOCK_TTL")

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	switch c.Notification.Driver {
	case "kafka", "log":
	default:
		return &ConfigurationError{Key: "NOTIFICATION_DRIVER", Reason: fmt.Sprintf("unknown driver %q", c.Notification.Driver)}
	}

	return nil
}

// Validate checks threshold ranges. The two approval reminder settings
// accept -1 to disable the trigger.
func (e *EventsConfig) Validate() error {
	positive := map[string]int{
		"EVENT_MAXIMUM_DAYS_TO_START":           e.MaxDaysToStart,
		"EVENT_MAXIMUM_DAYS_LENGTH":             e.MaxDaysLength,
		"EVENT_MAXIMUM_COUNT_PER_CONTRACT_ZONE": e.MaxCountPerZone,
	}
	for key, val := range positive {
		if val <= 0 {
			return &ConfigurationError{Key: key, Reason: fmt.Sprintf("must be positive, got %d", val)}
		}
	}
	if e.MinDaysBeforeStart < 0 {
		return &ConfigurationError{Key: "EVENT_MINIMUM_DAYS_BEFORE_START", Reason: "must not be negative"}
	}
	if e.AnonymizeAfterDays < 0 {
		return &ConfigurationError{Key: "EVENTS_ANONYMIZE_AFTER_DAYS", Reason: "must not be negative"}
	}
	disableable := map[string]int{
		"EVENT_REMINDER_DAYS_IN_ADVANCE":        e.ReminderDaysInAdvance,
		"APPROVAL_REMINDER_DAYS_AFTER_CREATION": e.ApprovalReminderDaysAfterCreation,
		"APPROVAL_REMINDER_DAYS_BEFORE_EVENT":   e.ApprovalReminderDaysBeforeEvent,
	}
	for key, val := range disableable {
		if val < -1 {
			return &ConfigurationError{Key: key, Reason: fmt.Sprintf("must be -1 or greater, got %d", val)}
		}
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
