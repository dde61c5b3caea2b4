package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
)

// Validate checks the configuration and reports every bad field at once.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("owner", c.Owner, required),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		criterio.Run("log.level", c.Log.Level, oneOf("debug", "info", "warn", "error")),
		criterio.Run("log.max_size_mb", c.Log.MaxSizeMB, nonNegative),
		criterio.Run("log.max_backups", c.Log.MaxBackups, nonNegative),
		criterio.Run("sync.interval", c.Sync.Interval, atLeast(time.Minute)),
		criterio.Run("sync.default_due_offset", c.Sync.DefaultDueOffset, atLeast(0)),
		c.validatePlacement(),
		c.validateStore(),
		criterio.Run("dashboard.port", c.Dashboard.Port, port),
		criterio.Run("watch.debounce", c.Watch.Debounce, atLeast(10*time.Millisecond)),
	)
}

func (c *Config) validatePlacement() error {
	if len(c.Placement.DefaultListNames) == 0 {
		return criterio.NewFieldErrors("placement.default_list_names", fmt.Errorf("at least one list name is required"))
	}

	var errs criterio.FieldErrorsBuilder
	for i, name := range c.Placement.DefaultListNames {
		if strings.TrimSpace(name) == "" {
			errs = errs.Append(fmt.Sprintf("placement.default_list_names[%d]", i), fmt.Errorf("name is empty"))
		}
	}
	return errs.ToError()
}

func (c *Config) validateStore() error {
	var errs criterio.FieldErrorsBuilder

	switch c.Store.Backend {
	case BackendLocal:
	case BackendRemote:
		if err := absoluteURL(c.Store.BaseURL); err != nil {
			errs = errs.Append("store.base_url", err)
		}
		if c.Store.Timeout <= 0 {
			errs = errs.Append("store.timeout", fmt.Errorf("must be positive"))
		}
	default:
		errs = errs.Append("store.backend", fmt.Errorf("must be %q or %q, got %q", BackendLocal, BackendRemote, c.Store.Backend))
	}

	return errs.ToError()
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(s string) error {
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func nonNegative(n int) error {
	if n < 0 {
		return fmt.Errorf("cannot be negative")
	}
	return nil
}

func atLeast(min time.Duration) func(time.Duration) error {
	return func(d time.Duration) error {
		if d < min {
			return fmt.Errorf("must be at least %s", min)
		}
		return nil
	}
}

func port(p int) error {
	if p < 0 || p > 65535 {
		return fmt.Errorf("must be between 0 and 65535")
	}
	return nil
}

func absoluteURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("is required for the remote backend")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("is required")
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
