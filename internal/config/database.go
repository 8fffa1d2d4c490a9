package config

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventStoreDatabaseConfig tunes the Postgres connection backing the GORM
// event log, snapshot store and archive store gateways for an
// append-heavy, low-latency workload: short-lived statements, narrow
// connection pools per actor shard, and prepared-statement caching.
type EventStoreDatabaseConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" default:"5m"`

	PreparedStmts bool `yaml:"prepared_stmts" default:"true"`
	SilentLogger  bool `yaml:"silent_logger" default:"true"`
}

// DefaultEventStoreDatabaseConfig returns conservative defaults for a
// single-node deployment.
func DefaultEventStoreDatabaseConfig() *EventStoreDatabaseConfig {
	return &EventStoreDatabaseConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PreparedStmts:   true,
		SilentLogger:    true,
	}
}

// NewEventStoreDatabase opens a GORM connection to Postgres configured for
// the actor core's storage gateways.
func NewEventStoreDatabase(dsn string, cfg *EventStoreDatabaseConfig) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultEventStoreDatabaseConfig()
	}

	gormConfig := &gorm.Config{
		PrepareStmt: cfg.PreparedStmts,
	}
	if cfg.SilentLogger {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// DSN builds a libpq connection string from the Database config section.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// GetDatabaseStats returns connection pool statistics for operational
// dashboards.
func GetDatabaseStats(db *gorm.DB) (map[string]interface{}, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	dbStats := sqlDB.Stats()
	stats := map[string]interface{}{
		"max_open_connections": dbStats.MaxOpenConnections,
		"open_connections":     dbStats.OpenConnections,
		"in_use":               dbStats.InUse,
		"idle":                 dbStats.Idle,
		"wait_count":           dbStats.WaitCount,
		"wait_duration":        dbStats.WaitDuration,
		"max_idle_closed":      dbStats.MaxIdleClosed,
		"max_idle_time_closed": dbStats.MaxIdleTimeClosed,
		"max_lifetime_closed":  dbStats.MaxLifetimeClosed,
	}

	return stats, nil
}
