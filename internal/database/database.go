package database

import (
	"context"
	"fmt"
	"log" // Standard log package for GORM logger adapter
	"os"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DB struct {
	log     zerolog.Logger
	handler *gorm.DB
	ctx     context.Context
	cancel  func()

	Driver string
	DSN    string
}

func NewDB(cfg *domain.Config, log logger.Logger) (*DB, error) {
	db := &DB{
		log: log.With().Str("module", "database").Logger(),
	}
	db.ctx, db.cancel = context.WithCancel(context.Background())

	switch cfg.Database.Type {
	case "sqlite":
		db.Driver = "sqlite"
		db.DSN = dataSourceName(cfg.ConfigPath, "contestcal.db")
	case "postgres", "postgresql":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Port == 0 || cfg.Database.Postgres.Database == "" {
			return nil, errors.New("postgres configuration is incomplete")
		}
		db.DSN = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Postgres.Host, cfg.Database.Postgres.Port, cfg.Database.Postgres.User, cfg.Database.Postgres.Pass, cfg.Database.Postgres.Database, cfg.Database.Postgres.SslMode)
		db.Driver = "postgres"
	default:
		return nil, errors.New("unsupported database type: %v", cfg.Database.Type)
	}

	return db, nil
}

func (db *DB) Open() error {
	if db.DSN == "" {
		return errors.New("database DSN is required but not configured")
	}

	var dialector gorm.Dialector
	gormLogLevel := gormlogger.Warn
	switch db.log.GetLevel() {
	case zerolog.InfoLevel:
		gormLogLevel = gormlogger.Info
	case zerolog.WarnLevel:
		gormLogLevel = gormlogger.Warn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		gormLogLevel = gormlogger.Error
	case zerolog.DebugLevel, zerolog.TraceLevel:
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Silent
	}

	// Using standard logger adapter for simplicity.
	newLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{
		Logger:         newLogger,
		TranslateError: true, // map driver duplicate-key errors to gorm.ErrDuplicatedKey
	}

	switch db.Driver {
	case "sqlite":
		dialector = sqlite.Open(db.DSN)
		db.log.Info().Str("dsn", db.DSN).Msg("Using SQLite driver")
	case "postgres":
		dialector = postgres.Open(db.DSN)
		db.log.Info().Msg("Using PostgreSQL driver") // Avoid logging DSN with password
	default:
		return errors.New("unsupported database driver: %s", db.Driver)
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		db.log.Error().Err(err).Str("driver", db.Driver).Msg("Failed to connect database")
		return errors.Wrap(err, "failed to connect database")
	}
	db.handler = gormDB
	db.log.Info().Msg("Database connection established successfully.")

	db.log.Info().Msg("Running database auto-migrations...")
	err = db.handler.AutoMigrate(
		&domain.Contest{},
		&domain.User{},
		&domain.UserCalendarEvent{},
	)
	if err != nil {
		db.log.Error().Err(err).Msg("Failed to run database auto-migrations")
		return errors.Wrap(err, "failed to run database auto-migrations")
	}
	db.log.Info().Msg("Database auto-migrations completed.")

	return nil
}

func (db *DB) Close() error {
	// Cancel background context
	db.cancel()

	// GORM manages the underlying connection pool.
	db.log.Info().Msg("Database service closed.")
	return nil
}

func (db *DB) Ping() error {
	if db.handler == nil {
		return errors.New("database handler is not initialized")
	}
	sqlDB, err := db.handler.DB()
	if err != nil {
		db.log.Error().Err(err).Msg("Failed to get underlying *sql.DB for ping")
		return errors.Wrap(err, "failed to get underlying *sql.DB")
	}

	err = sqlDB.PingContext(db.ctx)
	if err != nil {
		db.log.Warn().Err(err).Msg("Database ping failed")
		return errors.Wrap(err, "database ping failed")
	}
	db.log.Debug().Msg("Database ping successful")
	return nil
}

// Get returns the underlying GORM DB instance.
// This allows repository implementations to use the GORM handler directly.
func (db *DB) Get() *gorm.DB {
	return db.handler
}
