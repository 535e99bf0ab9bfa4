/*
Package config provides typed configuration for formnav processes.

# Overview

Config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches by returning default values. Keys are dotted
paths into nested maps, so the same accessors work on a parsed YAML file and
on viper's AllSettings:

	cfg := config.New(map[string]any{
	    "bus":    map[string]any{"buffer_size": 512},
	    "router": map[string]any{"handler_timeout": "2s"},
	})

	cfg.Int("bus.buffer_size", 256)                  // 512
	cfg.Duration("router.handler_timeout", time.Second) // 2s
	cfg.String("journal.path", "")                   // ""

# Settings

LoadSettings overlays a Config onto DefaultSettings and validates it:

	settings, err := config.LoadSettings(cfg)

Recognized keys: bus.buffer_size, bus.dedupe_ttl, bus.non_blocking,
router.max_depth, router.handler_timeout, router.validate, journal.path,
log.level, log.format, telemetry.metrics, telemetry.tracing.

# File Loading

	cfg, err := config.FromFile("formnav.yaml")

FromFile expands ${VAR} references from the environment before parsing.
Parse, FromYAML and FromJSON decode bytes directly.

A Config is never modified after New, so it may be shared between
goroutines.
*/
package config
