// Package logging configures structured logging for connstate.
//
// Components obtain a logger with Logger("component"); every call resolves
// slog.Default() at log time, so Setup may run after package-level loggers
// have been declared.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger for the given level and format.
// Supported formats are "text" and "json"; an empty writer means stderr.
func Setup(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a textual level to a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// ComponentLogger tags every record with a component name.
type ComponentLogger struct {
	component string
}

// Logger returns a logger for the named component.
func Logger(component string) *ComponentLogger {
	return &ComponentLogger{component: component}
}

func (l *ComponentLogger) base() *slog.Logger {
	return slog.Default().With("component", l.component)
}

func (l *ComponentLogger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }
func (l *ComponentLogger) Info(msg string, args ...any)  { l.base().Info(msg, args...) }
func (l *ComponentLogger) Warn(msg string, args ...any)  { l.base().Warn(msg, args...) }
func (l *ComponentLogger) Error(msg string, args ...any) { l.base().Error(msg, args...) }

// Slog returns the underlying slog.Logger with the component attribute set.
func (l *ComponentLogger) Slog() *slog.Logger {
	return l.base()
}
