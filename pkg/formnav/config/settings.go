package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Settings is the resolved configuration of a formnav process.
type Settings struct {
	Bus       BusSettings
	Router    RouterSettings
	Journal   JournalSettings
	Log       LogSettings
	Telemetry TelemetrySettings
}

// BusSettings configures the observer bus.
type BusSettings struct {
	BufferSize  int
	DedupeTTL   time.Duration
	NonBlocking bool
}

// RouterSettings configures synchronous listener dispatch.
type RouterSettings struct {
	MaxDepth       int
	HandlerTimeout time.Duration
	RetryAttempts  int
	Validate       bool
}

// JournalSettings configures event persistence. An empty Path keeps the
// journal in memory.
type JournalSettings struct {
	Path string
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string
	Format string
}

// TelemetrySettings toggles OpenTelemetry instrumentation.
type TelemetrySettings struct {
	Metrics bool
	Tracing bool
}

// Default setting keys.
const (
	KeyBusBufferSize        = "bus.buffer_size"
	KeyBusDedupeTTL         = "bus.dedupe_ttl"
	KeyBusNonBlocking       = "bus.non_blocking"
	KeyRouterMaxDepth       = "router.max_depth"
	KeyRouterHandlerTimeout = "router.handler_timeout"
	KeyRouterRetryAttempts  = "router.retry_attempts"
	KeyRouterValidate       = "router.validate"
	KeyJournalPath          = "journal.path"
	KeyLogLevel             = "log.level"
	KeyLogFormat            = "log.format"
	KeyTelemetryMetrics     = "telemetry.metrics"
	KeyTelemetryTracing     = "telemetry.tracing"
)

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Bus: BusSettings{
			BufferSize: 256,
			DedupeTTL:  time.Minute,
		},
		Router: RouterSettings{
			MaxDepth:       10,
			HandlerTimeout: 5 * time.Second,
			RetryAttempts:  3,
			Validate:       true,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadSettings overlays c onto DefaultSettings and validates the result.
func LoadSettings(c Config) (Settings, error) {
	s := DefaultSettings()

	s.Bus.BufferSize = c.Int(KeyBusBufferSize, s.Bus.BufferSize)
	s.Bus.DedupeTTL = c.Duration(KeyBusDedupeTTL, s.Bus.DedupeTTL)
	s.Bus.NonBlocking = c.Bool(KeyBusNonBlocking, s.Bus.NonBlocking)
	s.Router.MaxDepth = c.Int(KeyRouterMaxDepth, s.Router.MaxDepth)
	s.Router.HandlerTimeout = c.Duration(KeyRouterHandlerTimeout, s.Router.HandlerTimeout)
	s.Router.RetryAttempts = c.Int(KeyRouterRetryAttempts, s.Router.RetryAttempts)
	s.Router.Validate = c.Bool(KeyRouterValidate, s.Router.Validate)
	s.Journal.Path = c.String(KeyJournalPath, s.Journal.Path)
	s.Log.Level = strings.ToLower(c.String(KeyLogLevel, s.Log.Level))
	s.Log.Format = strings.ToLower(c.String(KeyLogFormat, s.Log.Format))
	s.Telemetry.Metrics = c.Bool(KeyTelemetryMetrics, s.Telemetry.Metrics)
	s.Telemetry.Tracing = c.Bool(KeyTelemetryTracing, s.Telemetry.Tracing)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	switch {
	case s.Bus.BufferSize <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyBusBufferSize, s.Bus.BufferSize)
	case s.Bus.DedupeTTL < 0:
		return fmt.Errorf("%s must not be negative", KeyBusDedupeTTL)
	case s.Router.MaxDepth <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyRouterMaxDepth, s.Router.MaxDepth)
	case s.Router.HandlerTimeout < 0:
		return fmt.Errorf("%s must not be negative", KeyRouterHandlerTimeout)
	case s.Router.RetryAttempts < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyRouterRetryAttempts, s.Router.RetryAttempts)
	}
	if _, err := parseLevel(s.Log.Level); err != nil {
		return err
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		return fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, s.Log.Format)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (s Settings) SlogLevel() slog.Level {
	level, _ := parseLevel(s.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return level, nil
}
