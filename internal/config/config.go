// Package config loads betagated configuration from environment variables
// and an optional YAML file. Environment variables win over the file;
// defaults cover everything else, so a bare binary starts with a one-hour
// trial against a local JSON store.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Trial   TrialConfig   `yaml:"trial" envconfig:"TRIAL"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	Channel ChannelConfig `yaml:"channel" envconfig:"CHANNEL"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/betagated.log"`
}

// TrialConfig contains the trial lifecycle configuration.
type TrialConfig struct {
	Duration          time.Duration `yaml:"duration" envconfig:"DURATION" default:"1h"`
	Password          string        `yaml:"password" envconfig:"PASSWORD"`
	SimulationEnabled bool          `yaml:"simulation_enabled" envconfig:"SIMULATION_ENABLED" default:"false"`
	TickInterval      time.Duration `yaml:"tick_interval" envconfig:"TICK_INTERVAL" default:"1s"`
	Partition         string        `yaml:"partition" envconfig:"PARTITION" default:"default"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend       string `yaml:"backend" envconfig:"BACKEND" default:"file"`
	Path          string `yaml:"path" envconfig:"PATH" default:"betagate.json"`
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB" default:"0"`
}

// ChannelConfig configures the channel-membership probe.
type ChannelConfig struct {
	Mode       string `yaml:"mode" envconfig:"MODE" default:"env"`
	EnvVar     string `yaml:"env_var" envconfig:"ENV_VAR" default:"BETAGATE_CHANNEL"`
	MarkerPath string `yaml:"marker_path" envconfig:"MARKER_PATH"`
	Member     bool   `yaml:"member" envconfig:"MEMBER" default:"false"`
}

// Load loads configuration from environment variables and, if present, the
// YAML file named by BETAGATE_CONFIG (default "betagate.yaml").
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("BETAGATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays env values on top of file values, field by field. The
// env side has already been through envconfig, so a field still equal to
// its default is treated as unset and loses to the file; anything the
// file leaves at zero falls back to the default. An env value explicitly
// set to its own default is indistinguishable from unset.
func merge(fileCfg, envCfg Config) Config {
	def := Default()
	return Config{
		Server: ServerConfig{
			Port:            pickInt(fileCfg.Server.Port, envCfg.Server.Port, def.Server.Port),
			ReadTimeout:     pickDuration(fileCfg.Server.ReadTimeout, envCfg.Server.ReadTimeout, def.Server.ReadTimeout),
			WriteTimeout:    pickDuration(fileCfg.Server.WriteTimeout, envCfg.Server.WriteTimeout, def.Server.WriteTimeout),
			IdleTimeout:     pickDuration(fileCfg.Server.IdleTimeout, envCfg.Server.IdleTimeout, def.Server.IdleTimeout),
			ShutdownTimeout: pickDuration(fileCfg.Server.ShutdownTimeout, envCfg.Server.ShutdownTimeout, def.Server.ShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:    pickString(fileCfg.Logging.Level, envCfg.Logging.Level, def.Logging.Level),
			Output:   pickString(fileCfg.Logging.Output, envCfg.Logging.Output, def.Logging.Output),
			FilePath: pickString(fileCfg.Logging.FilePath, envCfg.Logging.FilePath, def.Logging.FilePath),
		},
		Trial: TrialConfig{
			Duration:          pickDuration(fileCfg.Trial.Duration, envCfg.Trial.Duration, def.Trial.Duration),
			Password:          pickString(fileCfg.Trial.Password, envCfg.Trial.Password, ""),
			SimulationEnabled: fileCfg.Trial.SimulationEnabled || envCfg.Trial.SimulationEnabled,
			TickInterval:      pickDuration(fileCfg.Trial.TickInterval, envCfg.Trial.TickInterval, def.Trial.TickInterval),
			Partition:         pickString(fileCfg.Trial.Partition, envCfg.Trial.Partition, def.Trial.Partition),
		},
		Store: StoreConfig{
			Backend:       pickString(fileCfg.Store.Backend, envCfg.Store.Backend, def.Store.Backend),
			Path:          pickString(fileCfg.Store.Path, envCfg.Store.Path, def.Store.Path),
			RedisAddr:     pickString(fileCfg.Store.RedisAddr, envCfg.Store.RedisAddr, def.Store.RedisAddr),
			RedisPassword: pickString(fileCfg.Store.RedisPassword, envCfg.Store.RedisPassword, ""),
			RedisDB:       pickInt(fileCfg.Store.RedisDB, envCfg.Store.RedisDB, def.Store.RedisDB),
		},
		Channel: ChannelConfig{
			Mode:       pickString(fileCfg.Channel.Mode, envCfg.Channel.Mode, def.Channel.Mode),
			EnvVar:     pickString(fileCfg.Channel.EnvVar, envCfg.Channel.EnvVar, def.Channel.EnvVar),
			MarkerPath: pickString(fileCfg.Channel.MarkerPath, envCfg.Channel.MarkerPath, ""),
			Member:     fileCfg.Channel.Member || envCfg.Channel.Member,
		},
	}
}

func pickString(file, env, def string) string {
	if env != def {
		return env
	}
	if file != "" {
		return file
	}
	return def
}

func pickInt(file, env, def int) int {
	if env != def {
		return env
	}
	if file != 0 {
		return file
	}
	return def
}

func pickDuration(file, env, def time.Duration) time.Duration {
	if env != def {
		return env
	}
	if file != 0 {
		return file
	}
	return def
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Trial.Duration <= 0 {
		return fmt.Errorf("trial duration must be positive, got %s", c.Trial.Duration)
	}
	if c.Trial.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Trial.TickInterval)
	}
	switch c.Store.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	switch c.Channel.Mode {
	case "env", "marker", "static":
	default:
		return fmt.Errorf("unknown channel probe mode: %q", c.Channel.Mode)
	}
	if c.Channel.Mode == "marker" && c.Channel.MarkerPath == "" {
		return fmt.Errorf("channel mode %q requires marker_path", c.Channel.Mode)
	}
	return nil
}

func configFilePath() string {
	if path := os.Getenv("BETAGATE_CONFIG"); path != "" {
		return path
	}
	return "betagate.yaml"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/betagated.log",
		},
		Trial: TrialConfig{
			Duration:     time.Hour,
			TickInterval: time.Second,
			Partition:    "default",
		},
		Store: StoreConfig{
			Backend:   "file",
			Path:      "betagate.json",
			RedisAddr: "localhost:6379",
		},
		Channel: ChannelConfig{
			Mode:   "env",
			EnvVar: "BETAGATE_CHANNEL",
		},
	}
}
