package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	fnerrors "github.com/randalmurphal/formnav/pkg/formnav/errors"
)

// LoggingMiddleware logs every listener call: successes at debug, vetoes
// at info and failures at warn.
func LoggingMiddleware(logger *slog.Logger) MiddlewareFunc {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) ([]Event, error) {
			start := time.Now()
			out, err := next.Handle(ctx, evt)

			listener := ListenerName(ctx)
			if listener == "" {
				listener = fmt.Sprintf("%T", next)
			}
			attrs := []slog.Attr{
				slog.String("event_type", evt.Type()),
				slog.String("event_id", evt.ID()),
				slog.String("form_id", evt.FormID()),
				slog.String("handler", listener),
				slog.Duration("elapsed", time.Since(start)),
			}

			level, msg := slog.LevelDebug, "event handled"
			switch {
			case err == nil:
			case fnerrors.IsRejected(err):
				level, msg = slog.LevelInfo, "event rejected by handler"
				attrs = append(attrs, slog.String("reason", err.Error()))
			default:
				level, msg = slog.LevelWarn, "event handler failed"
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.LogAttrs(ctx, level, msg, attrs...)
			return out, err
		})
	}
}

// RecoveryMiddleware turns a listener panic into a permanent failure.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) (out []Event, err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fnerrors.Permanent(&EventError{Event: evt, Handler: ListenerName(ctx), Message: fmt.Sprintf("panic: %v", p)}, "listener panicked")
				}
			}()
			return next.Handle(ctx, evt)
		})
	}
}

// MetricsMiddleware reports the duration and result of every listener call.
func MetricsMiddleware(observe func(ctx context.Context, eventType string, duration time.Duration, err error)) MiddlewareFunc {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) ([]Event, error) {
			start := time.Now()
			out, err := next.Handle(ctx, evt)
			observe(ctx, evt.Type(), time.Since(start), err)
			return out, err
		})
	}
}
