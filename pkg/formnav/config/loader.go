package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a config file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf maps a file name to its Format by extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// FromFile reads a .yaml, .yml or .json file. ${VAR} references in the
// file are replaced from the environment before parsing, so a journal
// path can be written as ${HOME}/.formnav/journal.db.
func FromFile(path string) (Config, error) {
	format, ok := FormatOf(path)
	if !ok {
		return Config{}, fmt.Errorf("%s: unsupported config format %q", path, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse([]byte(os.ExpandEnv(string(data))), format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data as format. An empty document yields an empty Config.
func Parse(data []byte, format Format) (Config, error) {
	var tree map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &tree); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", format)
	}
	return New(tree), nil
}

func FromYAML(data []byte) (Config, error) { return Parse(data, FormatYAML) }

func FromJSON(data []byte) (Config, error) { return Parse(data, FormatJSON) }
