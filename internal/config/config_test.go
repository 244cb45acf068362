package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Trial.Duration)
	assert.Equal(t, time.Second, cfg.Trial.TickInterval)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "env", cfg.Channel.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default passes",
			mutate: func(*Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "non-positive trial duration",
			mutate:  func(c *Config) { c.Trial.Duration = 0 },
			wantErr: "trial duration must be positive",
		},
		{
			name:    "negative tick interval",
			mutate:  func(c *Config) { c.Trial.TickInterval = -time.Second },
			wantErr: "tick interval must be positive",
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: "unknown store backend",
		},
		{
			name:   "memory backend accepted",
			mutate: func(c *Config) { c.Store.Backend = "memory" },
		},
		{
			name:    "unknown channel mode",
			mutate:  func(c *Config) { c.Channel.Mode = "dns" },
			wantErr: "unknown channel probe mode",
		},
		{
			name:    "marker mode without path",
			mutate:  func(c *Config) { c.Channel.Mode = "marker" },
			wantErr: "requires marker_path",
		},
		{
			name: "marker mode with path accepted",
			mutate: func(c *Config) {
				c.Channel.Mode = "marker"
				c.Channel.MarkerPath = "/var/lib/betagate/marker"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BETAGATE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("BETAGATE_SERVER_PORT", "9090")
	t.Setenv("BETAGATE_TRIAL_DURATION", "90s")
	t.Setenv("BETAGATE_TRIAL_PASSWORD", "p1")
	t.Setenv("BETAGATE_STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Trial.Duration)
	assert.Equal(t, "p1", cfg.Trial.Password)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "betagate.yaml")
	doc := `
server:
  port: 9191
trial:
  duration: 2h
  password: filepass
store:
  backend: memory
channel:
  mode: static
  member: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	t.Setenv("BETAGATE_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Trial.Duration)
	assert.Equal(t, "filepass", cfg.Trial.Password)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "static", cfg.Channel.Mode)
	assert.True(t, cfg.Channel.Member)

	// Fields the file omits fall back to defaults.
	assert.Equal(t, time.Second, cfg.Trial.TickInterval)
	assert.Equal(t, "default", cfg.Trial.Partition)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "betagate.yaml")
	doc := `
server:
  port: 9191
trial:
  password: filepass
  tick_interval: 5s
store:
  redis_addr: redis.internal:6380
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	t.Setenv("BETAGATE_CONFIG", path)
	t.Setenv("BETAGATE_SERVER_PORT", "9999")
	t.Setenv("BETAGATE_TRIAL_PASSWORD", "envpass")
	t.Setenv("BETAGATE_TRIAL_TICK_INTERVAL", "250ms")
	t.Setenv("BETAGATE_SERVER_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("BETAGATE_CHANNEL_ENV_VAR", "BETA_BUILD")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "envpass", cfg.Trial.Password)

	// Env wins for every field, not just the common ones.
	assert.Equal(t, 250*time.Millisecond, cfg.Trial.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "BETA_BUILD", cfg.Channel.EnvVar)

	// File values survive where the env is silent.
	assert.Equal(t, "redis.internal:6380", cfg.Store.RedisAddr)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "betagate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0600))
	t.Setenv("BETAGATE_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}
