package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Encode and WriteFile.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// FormatForPath picks a format from the file extension, defaulting to YAML.
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// document is c as plain values keyed like the config file. Durations are
// written as strings such as "1h0m0s" so both formats read back cleanly.
func (c *Config) document() map[string]any {
	return map[string]any{
		"owner":    c.Owner,
		"data_dir": c.DataDir,
		"log": map[string]any{
			"level":       c.Log.Level,
			"file":        c.Log.File,
			"max_size_mb": c.Log.MaxSizeMB,
			"max_backups": c.Log.MaxBackups,
		},
		"sync": map[string]any{
			"interval":           c.Sync.Interval.String(),
			"default_due_offset": c.Sync.DefaultDueOffset.String(),
		},
		"placement": map[string]any{
			"default_list_names": c.Placement.DefaultListNames,
		},
		"store": map[string]any{
			"backend":       c.Store.Backend,
			"base_url":      c.Store.BaseURL,
			"session_token": c.Store.SessionToken,
			"timeout":       c.Store.Timeout.String(),
		},
		"dashboard": map[string]any{
			"enabled": c.Dashboard.Enabled,
			"port":    c.Dashboard.Port,
		},
		"watch": map[string]any{
			"enabled":  c.Watch.Enabled,
			"debounce": c.Watch.Debounce.String(),
		},
	}
}

// Encode renders c in the given format.
func (c *Config) Encode(format string) ([]byte, error) {
	doc := c.document()

	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML, "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// WriteFile writes c to path atomically. An existing file is only replaced
// when force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := c.Encode(FormatForPath(path))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
