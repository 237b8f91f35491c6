// Package logger configures the engine's structured logging. Every
// subsystem that logs (browser pump warnings, reconcile rollbacks)
// takes a *Logger instead of writing to the standard
// library log package directly.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger; logrus entry helpers (WithField,
// WithError, ...) are available through embedding.
type Logger struct {
	*logrus.Logger
}

// LoggingConfig selects level, format, and destination.
type LoggingConfig struct {
	Level  string // logrus level name; unknown values fall back to "info"
	Format string // "json" or "text"
	Output string // "stdout", "stderr", or "file"

	// FilePath is the log file used when Output is "file". Defaults to
	// logs/refreshmint.log under the working directory.
	FilePath string
}

// New builds a Logger from cfg. A file destination that cannot be
// opened degrades to stdout with an error logged, rather than failing
// the whole engine over its own log file.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "stderr":
		l.SetOutput(os.Stderr)
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = filepath.Join("logs", "refreshmint.log")
		}
		if file, err := openLogFile(path); err != nil {
			l.SetOutput(os.Stdout)
			l.WithError(err).Error("failed to open log file; logging to stdout")
		} else {
			l.SetOutput(io.MultiWriter(os.Stdout, file))
		}
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
