package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/formnav/pkg/formnav"
	"github.com/randalmurphal/formnav/pkg/formnav/config"
	fnerrors "github.com/randalmurphal/formnav/pkg/formnav/errors"
	"github.com/randalmurphal/formnav/pkg/formnav/event"
	"github.com/randalmurphal/formnav/pkg/formnav/journal"
	"github.com/randalmurphal/formnav/pkg/formnav/observability"
)

// app holds what every subcommand needs once configuration is resolved.
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings config.Settings
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	tel      *telemetry
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "formnav",
		Short:         "Check and record form navigation events",
		Long:          `formnav validates streams of card, group and field navigation events, keeps a per-form journal of accepted events and replays it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./formnav.yaml, then ~/.config/formnav/config.yaml)")
	flags.String("journal", "", "path to the SQLite journal")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")

	_ = a.v.BindPFlag(config.KeyJournalPath, flags.Lookup("journal"))
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))

	root.AddCommand(newValidateCmd(a), newReplayCmd(a), newSchemasCmd(a))
	for _, cmd := range root.Commands() {
		cmd.RunE = a.flushAfter(cmd.RunE)
	}
	return root
}

// init reads the config file and environment, then builds the logger.
func (a *app) init(stderr io.Writer) error {
	defaults := config.DefaultSettings()
	a.v.SetDefault(config.KeyBusBufferSize, defaults.Bus.BufferSize)
	a.v.SetDefault(config.KeyBusDedupeTTL, defaults.Bus.DedupeTTL)
	a.v.SetDefault(config.KeyBusNonBlocking, defaults.Bus.NonBlocking)
	a.v.SetDefault(config.KeyRouterMaxDepth, defaults.Router.MaxDepth)
	a.v.SetDefault(config.KeyRouterHandlerTimeout, defaults.Router.HandlerTimeout)
	a.v.SetDefault(config.KeyRouterRetryAttempts, defaults.Router.RetryAttempts)
	a.v.SetDefault(config.KeyRouterValidate, defaults.Router.Validate)
	a.v.SetDefault(config.KeyLogLevel, defaults.Log.Level)
	a.v.SetDefault(config.KeyLogFormat, defaults.Log.Format)
	a.v.SetDefault(config.KeyTelemetryMetrics, defaults.Telemetry.Metrics)
	a.v.SetDefault(config.KeyTelemetryTracing, defaults.Telemetry.Tracing)

	a.v.SetEnvPrefix("FORMNAV")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		// Config lookup order:
		// 1. ./formnav.yaml
		// 2. ~/.config/formnav/config.yaml
		if _, err := os.Stat("formnav.yaml"); err == nil {
			a.v.SetConfigFile("formnav.yaml")
		} else {
			home, _ := os.UserHomeDir()
			a.v.AddConfigPath(filepath.Join(home, ".config", "formnav"))
			a.v.SetConfigName("config")
			a.v.SetConfigType("yaml")
		}
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	settings, err := config.LoadSettings(config.New(a.v.AllSettings()))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.settings = settings

	opts := &slog.HandlerOptions{Level: settings.SlogLevel()}
	if settings.Log.Format == "json" {
		a.logger = slog.New(slog.NewJSONHandler(stderr, opts))
	} else {
		a.logger = slog.New(slog.NewTextHandler(stderr, opts))
	}

	a.tel = startTelemetry(settings.Telemetry, a.logger)
	a.metrics = a.tel.metrics()
	a.spans = a.tel.spans()
	return nil
}

// flushAfter runs fn and then flushes telemetry, whether or not fn failed.
func (a *app) flushAfter(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if ferr := a.tel.flush(cmd.Context()); ferr != nil {
			a.logger.Warn("flushing telemetry failed", slog.String("error", ferr.Error()))
		}
		return err
	}
}

// openJournal opens the configured SQLite journal.
func (a *app) openJournal() (*journal.SQLiteStore, error) {
	if a.settings.Journal.Path == "" {
		return nil, errors.New("no journal configured (use --journal or journal.path)")
	}
	store, err := journal.NewSQLiteStore(a.settings.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", a.settings.Journal.Path, err)
	}
	return store, nil
}

// newRouter builds the schema-validating listener router the settings describe.
func (a *app) newRouter() *event.DefaultRouter {
	return formnav.NewRouter(formnav.RouterOptions{
		MaxDepth:       a.settings.Router.MaxDepth,
		SkipValidation: !a.settings.Router.Validate,
		Retry:          fnerrors.DefaultRetry.WithAttempts(a.settings.Router.RetryAttempts),
		HandlerTimeout: a.settings.Router.HandlerTimeout,
		Logger:         a.logger,
		Metrics:        a.metrics,
	})
}
