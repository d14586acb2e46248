// Package obslog is the fabrics core's single process-wide logging bridge.
//
// Section 9 of the design calls for "exactly one: a logging bridge
// initialised once per process with a memoised flag" and "a safe re-entry
// guard". This package provides that guard via sync.Once, in the style of
// ehrlich-b-wingthing's internal/logger package: a package-level *slog.Logger
// configured once, safe to call Init from multiple goroutines or multiple
// times.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	once   sync.Once
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Init configures the process-wide logger. Only the first call takes effect;
// subsequent calls are no-ops, matching the "memoised flag" re-entry guard.
func Init(level slog.Level, w io.Writer) {
	once.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		handler := slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("time", a.Value.Time().Format("15:04:05.000"))
				}
				return a
			},
		})
		logger = slog.New(handler)
	})
}

// Logger returns the process-wide logger, initialising it with sensible
// defaults (info level, stderr) if Init has not yet been called.
func Logger() *slog.Logger {
	return logger
}

// With returns a logger with the given component name attached, the way
// every state machine and backend in this module tags its log lines.
func With(component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// Endpoint logs an endpoint lifecycle event at debug level. Named helper
// because endpoint transitions are the highest-volume log line in the
// module and callers shouldn't have to repeat the attribute shape.
func Endpoint(ctx context.Context, component string, endpointID uint64, event string, args ...any) {
	attrs := append([]any{slog.Uint64("endpoint_id", endpointID), slog.String("event", event)}, args...)
	logger.With(slog.String("component", component)).DebugContext(ctx, "endpoint transition", attrs...)
}
