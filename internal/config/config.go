// Package config handles configuration loading and validation for dynsql.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/SimonWaldherr/dynsql/internal/engine"
)

// Config holds all configuration for dynsql.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Cursor CursorConfig `mapstructure:"cursor"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// EngineConfig selects the database the cursors run against.
type EngineConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// Placeholder is "auto", "dollar", "question" or "colon".
	Placeholder string `mapstructure:"placeholder"`
}

// CursorConfig sizes each session's cursor registry.
type CursorConfig struct {
	MaxCursors int `mapstructure:"max_cursors"`
	FetchBatch int `mapstructure:"fetch_batch"`
}

// ServerConfig configures `dynsql serve`.
type ServerConfig struct {
	HTTP         string        `mapstructure:"http"`
	GRPC         string        `mapstructure:"grpc"`
	SessionIdle  time.Duration `mapstructure:"session_idle"`
	ReapSchedule string        `mapstructure:"reap_schedule"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			Placeholder: "auto",
		},
		Cursor: CursorConfig{
			MaxCursors: 100,
			FetchBatch: 10,
		},
		Server: ServerConfig{
			HTTP:         ":8080",
			GRPC:         ":9090",
			SessionIdle:  15 * time.Minute,
			ReapSchedule: "@every 1m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	cfg := defaultConfig()
	v.SetDefault("engine.driver", cfg.Engine.Driver)
	v.SetDefault("engine.dsn", cfg.Engine.DSN)
	v.SetDefault("engine.placeholder", cfg.Engine.Placeholder)
	v.SetDefault("cursor.max_cursors", cfg.Cursor.MaxCursors)
	v.SetDefault("cursor.fetch_batch", cfg.Cursor.FetchBatch)
	v.SetDefault("server.http", cfg.Server.HTTP)
	v.SetDefault("server.grpc", cfg.Server.GRPC)
	v.SetDefault("server.session_idle", cfg.Server.SessionIdle)
	v.SetDefault("server.reap_schedule", cfg.Server.ReapSchedule)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)
}

// Load reads configuration from defaults, an optional file and DYNSQL_*
// environment variables.
func Load(configPath string) (*Config, error) {
	return LoadViper(viper.New(), configPath)
}

// LoadViper is Load on a caller-provided viper instance, so command-line
// flags bound to v take precedence.
func LoadViper(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("DYNSQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("dynsql")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dynsql")
		// No config file is fine.
		_ = v.ReadInConfig()
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are sensible.
func (c *Config) Validate() error {
	if c.Engine.Driver == "" {
		return errors.New("engine.driver must be set")
	}
	if _, ok := engine.ParsePlaceholderStyle(c.Engine.Placeholder, c.Engine.Driver); !ok {
		return errors.Errorf("invalid engine.placeholder: %s", c.Engine.Placeholder)
	}
	if c.Cursor.MaxCursors < 1 || c.Cursor.MaxCursors > 10000 {
		return errors.Errorf("cursor.max_cursors must be between 1 and 10000, got %d", c.Cursor.MaxCursors)
	}
	if c.Cursor.FetchBatch < 1 {
		return errors.Errorf("cursor.fetch_batch must be positive, got %d", c.Cursor.FetchBatch)
	}
	if c.Server.SessionIdle <= 0 {
		return errors.New("server.session_idle must be positive")
	}
	if _, err := cron.ParseStandard(c.Server.ReapSchedule); err != nil {
		return errors.Wrapf(err, "invalid server.reap_schedule %q", c.Server.ReapSchedule)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return errors.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}

// Placeholder resolves the configured placeholder style.
func (c *Config) Placeholder() engine.PlaceholderStyle {
	style, _ := engine.ParsePlaceholderStyle(c.Engine.Placeholder, c.Engine.Driver)
	return style
}
