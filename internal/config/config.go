// Package config contains the environment-backed application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all tunables read from the process environment. A .env file
// in the working directory is loaded first when present; real environment
// variables take precedence over it.
type Config struct {
	// Debug enables verbose diagnostics.
	Debug bool `env:"DEBUG"`
	// LogLevel selects the minimum log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// WorkspaceDir is the directory where executor workspaces are created.
	// Empty means a fresh temporary directory per executor.
	WorkspaceDir string `env:"WORKSPACE_DIR"`

	// ContainerPort is the port the generated application listens on inside
	// the container, and the default host port requested for mapping.
	ContainerPort int `env:"CONTAINER_PORT" envDefault:"8000"`
	// ContainerPrefix prefixes image and container names.
	ContainerPrefix string `env:"CONTAINER_PREFIX" envDefault:"intent"`

	// SkipAmenConfirmation bypasses the approval gate: unapproved intents
	// are auto-approved at execution time instead of being blocked.
	SkipAmenConfirmation bool `env:"SKIP_AMEN_CONFIRMATION" envDefault:"true"`

	// BuildTimeout bounds a docker image build.
	BuildTimeout time.Duration `env:"BUILD_TIMEOUT" envDefault:"5m"`
	// RunTimeout bounds a docker run invocation.
	RunTimeout time.Duration `env:"RUN_TIMEOUT" envDefault:"1m"`
	// StopTimeout bounds removal of a stale container.
	StopTimeout time.Duration `env:"STOP_TIMEOUT" envDefault:"30s"`
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment config: %w", err)
	}
	return cfg, nil
}
