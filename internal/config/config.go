// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package config loads service configuration from an optional YAML file,
// command-line flags and the DATABASE_URL environment variable, in that
// order of increasing precedence.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Listen      ListenConfig `koanf:"listen"`
	DatabaseURL string       `koanf:"database_url"`
	NATS        NATSConfig   `koanf:"nats"`
	Auth        AuthConfig   `koanf:"auth"`
	Health      HealthConfig `koanf:"health"`
	Log         LogConfig    `koanf:"log"`
}

// ListenConfig holds the listen addresses.
type ListenConfig struct {
	WS            string `koanf:"ws"`
	Observability string `koanf:"observability"`
}

// NATSConfig holds the bus connection settings.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig holds handshake authentication settings.
type AuthConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// HealthConfig holds the health reporter settings.
type HealthConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Listen: ListenConfig{
			WS:            ":8080",
			Observability: "127.0.0.1:9100",
		},
		NATS: NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		Auth: AuthConfig{
			Timeout: 5 * time.Second,
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks for values the server cannot start with. The database URL
// is not checked here; only the serve path needs one and it verifies its own.
func (c Config) Validate() error {
	if c.Listen.WS == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen.ws is required")
	}
	if c.NATS.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("nats.url is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code("CONFIG_INVALID").
			With("level", c.Log.Level).
			Errorf("log.level must be debug, info, warn or error")
	}
	if c.Auth.Timeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.timeout must be positive")
	}
	if c.Health.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("health.interval must be positive")
	}
	return nil
}

// Load builds the configuration. path may be empty; a missing explicit file
// is an error, flags may be nil. DATABASE_URL always wins for the database
// connection string so credentials can stay out of files and argv.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
