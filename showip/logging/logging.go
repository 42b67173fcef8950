// Package logging builds the slog loggers of the daemon. Operational records
// go to the system log; stderr is only a fallback for when it is unreachable.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Default: info
	Level string

	// Tag is the program name that syslog records carry.
	// Default: showip
	Tag string

	// Syslog sends records to the system log.
	// Default: true
	Syslog bool

	// Stderr also writes records into Output as text. Output is used
	// regardless when the system log cannot be reached.
	// Default: false
	Stderr bool

	// Output is the writer for text records.
	// Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Tag:    "showip",
		Syslog: true,
		Output: os.Stderr,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - SHOWIP_DEBUG: true/1 to enable debug level and copy records to stderr
//   - SHOWIP_LOG_LEVEL: debug, info, warn, error (default: info)
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("SHOWIP_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.Stderr = true
	} else if level := os.Getenv("SHOWIP_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}

	return cfg
}

// dialSyslog connects to the system log.
var dialSyslog = dialSystemLog

// New creates a new structured logger from the given configuration. The
// returned closer disconnects from the system log.
func New(cfg *Config) (*slog.Logger, io.Closer) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)

	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	stderr := cfg.Stderr

	if cfg.Syslog {
		w, err := dialSyslog(cfg.Tag)
		if err == nil {
			handlers = append(handlers, NewSyslogHandler(w, level))
			closer = w
		} else {
			stderr = true
			defer func() {
				slog.New(newFanoutHandler(handlers...)).Warn(
					"system log unreachable, logging to stderr", "error", err)
			}()
		}
	}

	if stderr {
		output := cfg.Output
		if output == nil {
			output = os.Stderr
		}

		handlers = append(handlers, slog.NewTextHandler(output, &slog.HandlerOptions{
			Level: level,
		}))
	}

	return slog.New(newFanoutHandler(handlers...)), closer
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel returns true if level names a known level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// WithComponent returns a new logger with a component name field.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
