// Package cli holds the start-up helpers shared by the binaries and the
// expensectl subcommands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"expenses/internal/config"
	applog "expenses/internal/log"
)

// SetupLogger installs the process-wide logger described by cfg.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout).WithComponent(component)
	if _, err := applog.ParseLevel(cfg.LogLevel); err != nil {
		logger.Warn("Unknown log level, using info", applog.FieldError, err)
	}
	return logger
}

// LoadAndValidateConfig loads configuration from the environment (and an
// optional .env file) and exits the process when it is invalid.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
