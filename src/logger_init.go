package main

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// InitializeGlobalLogger sets the process-wide logrus level and formatter.
// Runs once at startup, before any component starts logging; an unknown
// level falls back to info rather than aborting.
func InitializeGlobalLogger(logLevel string) {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		logrus.WithError(err).Warn("Unknown log level, falling back to info")
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})

	logrus.WithField("log_level", level.String()).Info("Logger configured")
}
