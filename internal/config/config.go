package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
)

// Config represents the application configuration for cmd/actorsim and any
// other host embedding the actor runtime.
type Config struct {
	// Actor configures the runtime core shared by every actor instance.
	Actor struct {
		NumberOfEventsPerRead      int64 `mapstructure:"number_of_events_per_read"`
		SnapshotVersionInterval    int64 `mapstructure:"snapshot_version_interval"`
		MinSnapshotVersionInterval int64 `mapstructure:"min_snapshot_version_interval"`
		PriorityAsyncEventBus      bool  `mapstructure:"priority_async_event_bus"`
		SyncAllObserversOnActivate bool  `mapstructure:"sync_all_observers_on_activate"`
	} `mapstructure:"actor"`

	// Archive configures the archive subsystem.
	Archive struct {
		On                             bool   `mapstructure:"on"`
		MaxSnapshotArchiveRecords      int    `mapstructure:"max_snapshot_archive_records"`
		MinVersionIntervalAtDeactivate int64  `mapstructure:"min_version_interval_at_deactivate"`
		EventArchiveType               string `mapstructure:"event_archive_type"` // "delete" or "move"
		MinVersionSpan                 int64  `mapstructure:"min_version_span"`
		MinWallTimeMillis              int64  `mapstructure:"min_wall_time_millis"`
	} `mapstructure:"archive"`

	// Database configuration for the GORM-backed gateways.
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	// Bus configures the NATS-backed event bus.
	Bus struct {
		NatsURL       string `mapstructure:"nats_url"`
		SubjectPrefix string `mapstructure:"subject_prefix"`
	} `mapstructure:"bus"`

	// ObserverPool sizes the ants pool backing concurrent observer fan-out.
	ObserverPool struct {
		Size int `mapstructure:"size"`
	} `mapstructure:"observer_pool"`

	// HandleCache configures the process-local actor handle cache in
	// cmd/actorsim, which applies TTLSeconds; Size is not applied.
	HandleCache struct {
		Size       int `mapstructure:"size"`
		TTLSeconds int `mapstructure:"ttl_seconds"`
	} `mapstructure:"handle_cache"`

	// Metrics configures the Prometheus exporter.
	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	// Monitoring configures ambient observability.
	Monitoring struct {
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`
}

var (
	config *Config
	once   sync.Once
)

// LoadConfig loads the configuration from the specified directory, falling
// back to "." / "./config" / "/etc/actorsourcing" and ACTORSOURCING_-prefixed
// environment variables when no path is given.
func LoadConfig(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		config = &Config{}

		// Set default values
		setDefaults()

		// Initialize viper
		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Add config path
		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/actorsourcing")
		}

		// Read environment variables
		v.AutomaticEnv()
		v.SetEnvPrefix("ACTORSOURCING")

		// Read config file
		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config file: %w", err)
				return
			}
			// Config file not found, using defaults and environment variables
			err = nil
		}

		// Unmarshal config
		if err = v.Unmarshal(config); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}
	})

	return config, err
}

// GetConfig returns the current configuration, loading it with default
// discovery paths if it hasn't been loaded yet.
func GetConfig() *Config {
	if config == nil {
		_, err := LoadConfig("")
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	}
	return config
}

// SaveConfig saves the configuration to a file, for operators who want to
// capture the effective config (defaults + env overrides) as a starting
// point for a checked-in file.
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setDefaults() {
	config.Actor.NumberOfEventsPerRead = 200
	config.Actor.SnapshotVersionInterval = 50
	config.Actor.MinSnapshotVersionInterval = 10
	config.Actor.PriorityAsyncEventBus = false
	config.Actor.SyncAllObserversOnActivate = false

	config.Archive.On = false
	config.Archive.MaxSnapshotArchiveRecords = 3
	config.Archive.MinVersionIntervalAtDeactivate = 0
	config.Archive.EventArchiveType = "delete"
	config.Archive.MinVersionSpan = 1000
	config.Archive.MinWallTimeMillis = 24 * 60 * 60 * 1000

	config.Database.Host = "localhost"
	config.Database.Port = 5432
	config.Database.User = "postgres"
	config.Database.Name = "actorsourcing"
	config.Database.SSLMode = "disable"

	config.Bus.NatsURL = "nats://127.0.0.1:4222"
	config.Bus.SubjectPrefix = "actorsourcing.events"

	config.ObserverPool.Size = 16

	config.HandleCache.Size = 10000
	config.HandleCache.TTLSeconds = 300

	config.Metrics.Enabled = true
	config.Metrics.Addr = ":9090"

	config.Monitoring.LogLevel = "info"
}

// InitLogger initializes the logger based on the configuration.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch cfg.Monitoring.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	case "info", "warn", "error":
		logger, err = zap.NewProduction()
	default:
		logger, err = zap.NewProduction()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

// ToActorOptions converts the loaded Actor/Archive config sections into
// actor.Options; it lives here rather than in package actor so the core
// stays free of a viper/mapstructure dependency.
func (c *Config) ToActorOptions() actor.Options {
	archiveType := actor.EventArchiveDelete
	if c.Archive.EventArchiveType == "move" {
		archiveType = actor.EventArchiveMove
	}
	return actor.Options{
		NumberOfEventsPerRead:      c.Actor.NumberOfEventsPerRead,
		SnapshotVersionInterval:    c.Actor.SnapshotVersionInterval,
		MinSnapshotVersionInterval: c.Actor.MinSnapshotVersionInterval,
		PriorityAsyncEventBus:      c.Actor.PriorityAsyncEventBus,
		SyncAllObserversOnActivate: c.Actor.SyncAllObserversOnActivate,
		Archive: actor.ArchiveOptions{
			On:                             c.Archive.On,
			MaxSnapshotArchiveRecords:      c.Archive.MaxSnapshotArchiveRecords,
			MinVersionIntervalAtDeactivate: c.Archive.MinVersionIntervalAtDeactivate,
			EventArchiveType:               archiveType,
			Policy: actor.ArchivePolicy{
				MinVersionSpan: c.Archive.MinVersionSpan,
				MinWallTime:    c.Archive.MinWallTimeMillis,
			},
		},
	}
}
