// Package logging wires up the shared structured logger used across the
// ingestion, adapter, and alerting pipelines.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls formatter and level selection for New.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// New builds a *logrus.Logger honoring cfg, defaulting to info/json.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
