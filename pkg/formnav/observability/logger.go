// Package observability carries the logging, metrics and tracing of form
// navigation. Metrics and spans go through OpenTelemetry and have no-op
// implementations; the logging helpers accept a nil logger.
package observability

import (
	"context"
	"log/slog"
	"time"
)

func logAt(logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger != nil {
		logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// EnrichLogger scopes logger to one form and correlation chain.
func EnrichLogger(logger *slog.Logger, formID, correlationID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("form_id", formID), slog.String("correlation_id", correlationID))
}

func LogTransitionStart(logger *slog.Logger, level, fromID, toID string) {
	logAt(logger, slog.LevelDebug, "transition starting",
		slog.String("nav_level", level), slog.String("from_id", fromID), slog.String("to_id", toID))
}

// LogTransitionComplete logs the dispatch of a transition's changed event.
// The elapsed time is logged in milliseconds.
func LogTransitionComplete(logger *slog.Logger, level, toID string, elapsed time.Duration) {
	logAt(logger, slog.LevelInfo, "transition completed",
		slog.String("nav_level", level), slog.String("to_id", toID), slog.Float64("duration_ms", millis(elapsed)))
}

func LogTransitionVetoed(logger *slog.Logger, level, toID string, reason error) {
	logAt(logger, slog.LevelInfo, "transition vetoed",
		slog.String("nav_level", level), slog.String("to_id", toID), slog.String("reason", reason.Error()))
}

func LogEventRejected(logger *slog.Logger, kind string, err error) {
	logAt(logger, slog.LevelWarn, "event payload rejected", slog.String("kind", kind), slog.String("error", err.Error()))
}

// LogListenerError logs a listener failure that did not stop dispatch.
func LogListenerError(logger *slog.Logger, kind string, err error) {
	logAt(logger, slog.LevelWarn, "listener failed", slog.String("kind", kind), slog.String("error", err.Error()))
}

func LogJournalAppend(logger *slog.Logger, formID string, seq int64, sizeBytes int) {
	logAt(logger, slog.LevelDebug, "journal entry appended",
		slog.String("form_id", formID), slog.Int64("seq", seq), slog.Int("size_bytes", sizeBytes))
}

// LogJournalError logs a failed journal operation. Journal failures never
// fail the navigation that produced the event.
func LogJournalError(logger *slog.Logger, formID, op string, err error) {
	logAt(logger, slog.LevelWarn, "journal operation failed",
		slog.String("form_id", formID), slog.String("operation", op), slog.String("error", err.Error()))
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
