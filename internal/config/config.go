package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// MessagingConfig selects and tunes the reminder channel. Mode is read
// once at startup.
type MessagingConfig struct {
	Mode            string        `mapstructure:"mode"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// LarkConfig holds Lark API credentials for live messaging
type LarkConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// SchedulerConfig holds reminder scheduling configuration
type SchedulerConfig struct {
	FiringTimes   []string      `mapstructure:"firing_times"`
	Timezone      string        `mapstructure:"timezone"`
	LookaheadDays int           `mapstructure:"lookahead_days"`
	Branches      []int64       `mapstructure:"branches"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// RedisConfig enables the cross-instance cycle lease when Addr is set
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load loads configuration from an optional YAML file and environment
// variables. Nested keys map to variables with "." replaced by "_", for
// example SCHEDULER_LOOKAHEAD_DAYS.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/ledger.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("messaging.mode", "simulation")
	v.SetDefault("messaging.timeout", 5*time.Second)
	v.SetDefault("messaging.rate_per_second", 5.0)
	v.SetDefault("messaging.burst", 5)
	v.SetDefault("messaging.breaker_failures", 5)
	v.SetDefault("messaging.breaker_cooldown", time.Minute)

	v.SetDefault("lark.receive_id_type", "open_id")

	v.SetDefault("scheduler.firing_times", []string{"09:00", "14:00"})
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.lookahead_days", 7)
	v.SetDefault("scheduler.branches", []int64{})
	v.SetDefault("scheduler.lease_ttl", 10*time.Minute)
	v.SetDefault("scheduler.retention_days", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// bindEnvVars binds credentials to their conventional variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("messaging.mode", "MESSAGING_MODE")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Messaging.Mode {
	case "simulation":
	case "live":
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required in live messaging mode")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required in live messaging mode")
		}
	default:
		return fmt.Errorf("messaging.mode must be simulation or live, got %q", c.Messaging.Mode)
	}

	if c.Messaging.Timeout <= 0 {
		return fmt.Errorf("messaging.timeout must be positive")
	}
	if len(c.Scheduler.FiringTimes) == 0 {
		return fmt.Errorf("scheduler.firing_times must list at least one HH:MM time")
	}
	for _, ft := range c.Scheduler.FiringTimes {
		if _, err := time.Parse("15:04", ft); err != nil {
			return fmt.Errorf("scheduler.firing_times: invalid time %q", ft)
		}
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Scheduler.LookaheadDays < 0 {
		return fmt.Errorf("scheduler.lookahead_days must not be negative")
	}
	if c.Scheduler.RetentionDays < 1 {
		return fmt.Errorf("scheduler.retention_days must be at least 1")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}
