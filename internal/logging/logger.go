// Package logging provides component loggers built on logrus.
package logging

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// NoContentMessage is the tsserver response message for requests that found
// nothing to answer with. It is expected and never logged as an error.
const NoContentMessage = "No content available."

// EnvLogLevel overrides the configured log level.
const EnvLogLevel = "TSBRIDGE_LOG_LEVEL"

var (
	base      = newBase()
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// Options configures the shared logger.
type Options struct {
	// Level is a logrus level name. TSBRIDGE_LOG_LEVEL takes precedence.
	Level string
	// Format is "text" or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Configure applies opts to every component logger, existing and future.
func Configure(opts Options) {
	levelStr := opts.Level
	if env := os.Getenv(EnvLogLevel); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.Output != nil {
		base.SetOutput(opts.Output)
	}
}

// Base returns the logger all components write through.
func Base() *logrus.Logger {
	return base
}

// NewLogger returns the logger for a component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, ok := loggers[component]; ok {
		return logger
	}

	logger := base.WithField("component", component)
	loggers[component] = logger
	return logger
}

// Error logs err at error level unless it is the benign "no content" response.
func Error(log *logrus.Entry, msg string, err error) {
	if IsNoContent(err) {
		return
	}
	log.WithError(err).Error(msg)
}

// IsNoContent reports whether err, or anything it wraps, carries the
// tsserver "No content available." message.
func IsNoContent(err error) bool {
	for err != nil {
		if err.Error() == NoContentMessage {
			return true
		}
		var m interface{ ResponseMessage() string }
		if errors.As(err, &m) && m.ResponseMessage() == NoContentMessage {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
