package schema

import (
	"fmt"
	"time"
)

// SourceType identifies the kind of external provider behind a source account.
// The set is open-ended; adapters register the types they handle.
type SourceType string

const (
	SourceTypeCalendar SourceType = "calendar"
	SourceTypeLMS      SourceType = "lms"
	SourceTypeFile     SourceType = "file"
)

// SourceStatus is the connectivity status recorded after each reconciliation.
type SourceStatus string

const (
	StatusConnected SourceStatus = "connected"
	StatusError     SourceStatus = "error"
)

// SourceAccount is a user's connection to one external assignment provider.
type SourceAccount struct {
	ID    string     `json:"id"`
	Owner string     `json:"owner"`
	Type  SourceType `json:"source_type"`
	Name  string     `json:"source_name"`

	// Details is the provider-specific connection payload. The reconciler
	// reads it but never writes it.
	Details map[string]string `json:"details,omitempty"`

	Status     SourceStatus `json:"status"`
	LastError  string       `json:"last_error,omitempty"`
	LastSyncAt *time.Time   `json:"last_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the SourceAccount has valid field values.
func (a *SourceAccount) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if a.Type == "" {
		return fmt.Errorf("source type is required")
	}
	if a.Name == "" {
		return fmt.Errorf("source name is required")
	}
	switch a.Status {
	case StatusConnected, StatusError:
	default:
		return fmt.Errorf("invalid status %q", a.Status)
	}
	return nil
}

// Detail returns a connection detail, or def when it is unset or empty.
func (a *SourceAccount) Detail(key, def string) string {
	if v, ok := a.Details[key]; ok && v != "" {
		return v
	}
	return def
}
