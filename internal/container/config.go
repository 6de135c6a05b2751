// Package container provides dependency injection and lifecycle management
// for the office ledger, with ordered start-up and reverse-order teardown.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Messaging gateway configuration
	Messaging MessagingConfig

	// Reminder scheduler configuration
	Scheduler SchedulerConfig

	// Redis lease configuration; empty Addr selects the in-process lock
	Redis RedisConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// MessagingConfig holds gateway settings.
type MessagingConfig struct {
	// Mode is "simulation" or "live"
	Mode string

	// Timeout bounds a single send
	Timeout time.Duration

	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// Lark credentials, required in live mode
	AppID         string
	AppSecret     string
	ReceiveIDType string
}

// SchedulerConfig holds reminder scheduling settings.
type SchedulerConfig struct {
	// FiringTimes are local "HH:MM" times
	FiringTimes []string

	// Timezone names the zone "today" is taken in
	Timezone string

	LookaheadDays int

	// Branches restricts reminders; empty means every branch
	Branches []int64

	LeaseTTL time.Duration

	// RetentionDays is reported only; dispatch records are never pruned
	RetentionDays int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/ledger.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Messaging: MessagingConfig{
			Mode:            "simulation",
			Timeout:         5 * time.Second,
			RatePerSecond:   5,
			Burst:           5,
			BreakerFailures: 5,
			BreakerCooldown: time.Minute,
			ReceiveIDType:   "open_id",
		},
		Scheduler: SchedulerConfig{
			FiringTimes:   []string{"09:00", "14:00"},
			Timezone:      "UTC",
			LookaheadDays: 7,
			LeaseTTL:      10 * time.Minute,
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Messaging.Mode {
	case "simulation":
	case "live":
		if c.Messaging.AppID == "" || c.Messaging.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required in live mode")
		}
	default:
		return fmt.Errorf("messaging.mode must be simulation or live, got %q", c.Messaging.Mode)
	}

	if len(c.Scheduler.FiringTimes) == 0 {
		return fmt.Errorf("scheduler.firing_times is required")
	}

	return nil
}
