package database

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/clinicflow/internal/config"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openVisitIndex enforces at most one Waiting or In-Progress visit per
// patient and clinic. AutoMigrate cannot express partial indexes.
const openVisitIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_visits_open
	ON visits (clinic_id, patient_id)
	WHERE status IN ('Waiting', 'In-Progress')`

// DB wraps the gorm handle with lifecycle helpers
type DB struct {
	*gorm.DB
}

// Connect opens the connection pool and runs migrations
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := Open(dsn, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.DBName).Msg("Database connected and migrated")
	return db, nil
}

// Open connects to the postgres DSN without migrating
func Open(dsn, logLevel string) (*DB, error) {
	var gormLogger logger.Interface
	switch logLevel {
	case "silent":
		gormLogger = logger.Default.LogMode(logger.Silent)
	case "error":
		gormLogger = logger.Default.LogMode(logger.Error)
	case "info":
		gormLogger = logger.Default.LogMode(logger.Info)
	default:
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &DB{DB: gdb}, nil
}

// Migrate creates or updates every table plus the indexes gorm tags cannot
// describe
func (db *DB) Migrate() error {
	if err := db.AutoMigrate(
		&models.Clinic{},
		&models.Visit{},
		&models.Prescription{},
		&models.AuditLog{},
	); err != nil {
		return err
	}
	return db.Exec(openVisitIndex).Error
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
