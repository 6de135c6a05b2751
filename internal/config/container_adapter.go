package config

import (
	"github.com/garyjia/office-ledger/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Messaging: container.MessagingConfig{
			Mode:            c.Messaging.Mode,
			Timeout:         c.Messaging.Timeout,
			RatePerSecond:   c.Messaging.RatePerSecond,
			Burst:           c.Messaging.Burst,
			BreakerFailures: c.Messaging.BreakerFailures,
			BreakerCooldown: c.Messaging.BreakerCooldown,
			AppID:           c.Lark.AppID,
			AppSecret:       c.Lark.AppSecret,
			ReceiveIDType:   c.Lark.ReceiveIDType,
		},
		Scheduler: container.SchedulerConfig{
			FiringTimes:   append([]string(nil), c.Scheduler.FiringTimes...),
			Timezone:      c.Scheduler.Timezone,
			LookaheadDays: c.Scheduler.LookaheadDays,
			Branches:      append([]int64(nil), c.Scheduler.Branches...),
			LeaseTTL:      c.Scheduler.LeaseTTL,
			RetentionDays: c.Scheduler.RetentionDays,
		},
		Redis: container.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
