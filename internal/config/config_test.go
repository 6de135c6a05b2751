package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "simulation", cfg.Messaging.Mode)
	assert.Equal(t, []string{"09:00", "14:00"}, cfg.Scheduler.FiringTimes)
	assert.Equal(t, 7, cfg.Scheduler.LookaheadDays)
	assert.Equal(t, 5*time.Second, cfg.Messaging.Timeout)
	assert.Equal(t, 30, cfg.Scheduler.RetentionDays)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
messaging:
  mode: live
scheduler:
  firing_times: ["08:30", "15:00"]
  branches: [1, 2]
`), 0o600))

	t.Setenv("LARK_APP_ID", "cli_test")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("SCHEDULER_LOOKAHEAD_DAYS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "live", cfg.Messaging.Mode)
	assert.Equal(t, "cli_test", cfg.Lark.AppID)
	assert.Equal(t, []string{"08:30", "15:00"}, cfg.Scheduler.FiringTimes)
	assert.Equal(t, []int64{1, 2}, cfg.Scheduler.Branches)
	assert.Equal(t, 3, cfg.Scheduler.LookaheadDays)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Path: "ledger.db"},
			Messaging: MessagingConfig{Mode: "simulation", Timeout: time.Second},
			Scheduler: SchedulerConfig{FiringTimes: []string{"09:00", "14:00"}, Timezone: "UTC", LookaheadDays: 7, RetentionDays: 30},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown mode", func(c *Config) { c.Messaging.Mode = "carrier-pigeon" }, "messaging.mode"},
		{"live without credentials", func(c *Config) { c.Messaging.Mode = "live" }, "lark.app_id"},
		{"bad firing time", func(c *Config) { c.Scheduler.FiringTimes = []string{"9am"} }, "firing_times"},
		{"no firing times", func(c *Config) { c.Scheduler.FiringTimes = nil }, "firing_times"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Nowhere/Land" }, "timezone"},
		{"negative lookahead", func(c *Config) { c.Scheduler.LookaheadDays = -1 }, "lookahead_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Lark.AppID = "cli_a"
	cfg.Lark.AppSecret = "secret"
	cfg.Scheduler.Branches = []int64{3, 5}
	cfg.Redis.Addr = "localhost:6379"

	cc := cfg.ToContainerConfig()

	assert.Equal(t, cfg.Database.Path, cc.Database.Path)
	assert.Equal(t, "cli_a", cc.Messaging.AppID)
	assert.Equal(t, "secret", cc.Messaging.AppSecret)
	assert.Equal(t, cfg.Messaging.Mode, cc.Messaging.Mode)
	assert.Equal(t, []int64{3, 5}, cc.Scheduler.Branches)
	assert.Equal(t, cfg.Scheduler.FiringTimes, cc.Scheduler.FiringTimes)
	assert.Equal(t, "localhost:6379", cc.Redis.Addr)
	assert.NoError(t, cc.Validate())

	cfg.Scheduler.Branches[0] = 99
	assert.Equal(t, int64(3), cc.Scheduler.Branches[0], "container config must not alias slices")
}
