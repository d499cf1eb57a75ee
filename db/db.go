package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/bartventer/gorm-multitenancy/postgres/v8"
	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
	"github.com/bartventer/gorm-multitenancy/v8/pkg/driver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the multitenancy database instance
type DB struct {
	*multitenancy.DB
}

// Config holds database configuration. Zero pool values keep the database/sql defaults.
type Config struct {
	DatabaseURL     string
	Debug           bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens the Postgres database through the multitenancy driver and applies the pool settings
func Connect(ctx context.Context, cfg *Config) (*DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	gormConfig := &gorm.Config{}
	if cfg.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	mdb, err := multitenancy.OpenDB(ctx, cfg.DatabaseURL, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := mdb.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	slog.Info("Database connection established", "max_open_conns", cfg.MaxOpenConns)
	return &DB{DB: mdb}, nil
}

// Setup registers the billing models and migrates them into the public schema. Communities
// are tenants, but every billing table is shared and keyed by community id.
func (db *DB) Setup(ctx context.Context, models ...driver.TenantTabler) error {
	if err := db.DB.RegisterModels(ctx, models...); err != nil {
		return fmt.Errorf("failed to register models: %w", err)
	}
	if err := db.DB.MigrateSharedModels(ctx); err != nil {
		return fmt.Errorf("failed to migrate shared models: %w", err)
	}
	slog.Info("Shared models migrated", "count", len(models))
	return nil
}

// Gorm returns the underlying gorm handle for the public schema.
func (db *DB) Gorm() *gorm.DB {
	return db.DB.DB
}

// Ping checks that the database answers within ctx.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}
