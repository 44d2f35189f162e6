// Package config loads the ghuser configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the ghuser configuration.
type Config struct {
	DBPath    string        `env:"GHUSER_DB_PATH"    envDefault:"ghuser.db"`
	GitHubURL string        `env:"GHUSER_GITHUB_URL" envDefault:"https://api.github.com"`
	Token     string        `env:"GHUSER_GITHUB_TOKEN"`
	MaxAge    time.Duration `env:"GHUSER_MAX_AGE"    envDefault:"0s"`
	Timeout   time.Duration `env:"GHUSER_TIMEOUT"    envDefault:"30s"`
	LogLevel  string        `env:"GHUSER_LOG_LEVEL"  envDefault:"info"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the configuration from the given variables instead of the process environment.
// A nil map means the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var (
		cfg  Config
		opts env.Options
	)

	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the values that env parsing cannot.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("GHUSER_DB_PATH required")
	}

	if c.GitHubURL == "" {
		return errors.New("GHUSER_GITHUB_URL required")
	}

	if c.MaxAge < 0 {
		return errors.New("GHUSER_MAX_AGE must not be negative")
	}

	if c.Timeout <= 0 {
		return errors.New("GHUSER_TIMEOUT must be positive")
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid GHUSER_LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	return level, nil
}
