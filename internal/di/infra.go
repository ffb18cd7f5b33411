package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/migrations"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/database"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/kafka"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	pkgredis "github.com/City-of-Helsinki/haravajarjestelma/pkg/redis"
)

// Infra holds the external connections of one process
type Infra struct {
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer
}

// Connect opens Postgres, Redis and Kafka. Postgres is required. Redis and
// Kafka are optional: without Redis, job locks use Postgres advisory locks;
// without Kafka, notifications are logged.
func Connect(ctx context.Context, cfg *config.Config, clientID string, log *logger.Logger) (*Infra, error) {
	infra := &Infra{}

	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	infra.DB = db
	log.Info("Database connected", zap.Int32("max_conns", dbCfg.MaxConns))

	if cfg.Database.AutoMigrate {
		applied, err := migrations.Apply(ctx, db.Pool())
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			log.Info("Migrations applied", zap.Strings("migrations", applied))
		}
	}

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    2,
			RetryInterval: 500 * time.Millisecond,
		})
		if err != nil {
			log.Warn("Redis connection failed, continuing without it", zap.Error(err))
		} else {
			infra.Redis = rc
			log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	if cfg.Notification.Driver == "kafka" {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      clientID,
			MaxRetries:    3,
			RetryInterval: time.Second,
		})
		if err != nil {
			log.Warn("Kafka connection failed, notifications will only be logged", zap.Error(err))
		} else {
			infra.Producer = producer
			log.Info("Kafka producer connected", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}

	return infra, nil
}

// Close releases every open connection
func (i *Infra) Close() {
	if i.Producer != nil {
		i.Producer.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// ContainerConfig returns a ContainerConfig wired to these connections
func (i *Infra) ContainerConfig(cfg *config.Config, log *logger.Logger) *ContainerConfig {
	return &ContainerConfig{
		Config:   cfg,
		DB:       i.DB,
		Redis:    i.Redis,
		Producer: i.Producer,
		Logger:   log,
	}
}
