package formnav

import (
	"context"
	"log/slog"
	"time"

	fnerrors "github.com/randalmurphal/formnav/pkg/formnav/errors"
	"github.com/randalmurphal/formnav/pkg/formnav/event"
	"github.com/randalmurphal/formnav/pkg/formnav/observability"
)

// RouterOptions configures NewRouter. The zero value is usable.
type RouterOptions struct {
	// MaxDepth limits listener-derived event chains. Default: 10
	MaxDepth int

	// SkipValidation disables payload shape checks before dispatch.
	SkipValidation bool

	// Retry applies to transient listener failures. Default: fnerrors.DefaultRetry
	Retry fnerrors.RetryPolicy

	// HandlerTimeout bounds each listener call. Default: no limit
	HandlerTimeout time.Duration

	// DLQ receives events whose listeners failed permanently (optional).
	DLQ event.DeadLetterQueue

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
}

// NewRouter returns a router for navigation listeners. It validates payloads
// against the schemas of NewRegistry and turns listener panics into permanent
// failures. Each listener call is logged and counted by outcome.
func NewRouter(opts RouterOptions) *event.DefaultRouter {
	cfg := event.RouterConfig{
		MaxDepth:       opts.MaxDepth,
		Retry:          opts.Retry,
		HandlerTimeout: opts.HandlerTimeout,
		DLQ:            opts.DLQ,
	}
	if !opts.SkipValidation {
		cfg.Registry = NewRegistry()
		cfg.ValidateEvents = true
	}
	router := event.NewRouter(cfg)

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	router.Use(event.MetricsMiddleware(func(ctx context.Context, kind string, d time.Duration, err error) {
		metrics.RecordListener(ctx, kind, d, ListenerOutcome(err))
	}))
	if opts.Logger != nil {
		router.Use(event.LoggingMiddleware(opts.Logger))
	}
	router.Use(event.RecoveryMiddleware())
	return router
}

// ListenerOutcome classifies a listener's result for metrics.
func ListenerOutcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case IsVeto(err):
		return observability.OutcomeVetoed
	default:
		return observability.OutcomeFailed
	}
}
