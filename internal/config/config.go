// Package config loads client configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 30 * time.Second
)

// Config carries everything needed to wire the canvas against a backend.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	LogLevel    string
}

// Load reads configuration from the environment. A missing .env file is not
// an error; a present but unreadable one is.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	cfg := Config{
		BaseURL:     defaultBaseURL,
		HTTPTimeout: defaultTimeout,
		LogLevel:    "info",
	}
	if v := os.Getenv("FLOWCANVAS_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FLOWCANVAS_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse FLOWCANVAS_HTTP_TIMEOUT %q", v)
		}
		cfg.HTTPTimeout = d
	}
	if v := os.Getenv("FLOWCANVAS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// NewLogger builds a zap logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", c.LogLevel)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}
