package schema

import (
	"fmt"
	"time"
)

// RawAssignment is an assignment exactly as one poll of a source reported it.
// It only lives for the duration of a reconciliation run.
type RawAssignment struct {
	ExternalID  string     `json:"external_id" yaml:"external_id"`
	Name        string     `json:"name" yaml:"name"`
	Description *string    `json:"description,omitempty" yaml:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Validate rejects assignments that cannot be materialized at all.
func (r *RawAssignment) Validate() error {
	if r.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// SyncMapping ties an external assignment to the task it was materialized into.
type SyncMapping struct {
	SourceAccountID    string     `json:"source_account_id"`
	ExternalID         string     `json:"external_id"`
	InternalTaskID     string     `json:"internal_task_id"`
	ExternalModifiedAt *time.Time `json:"external_modified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Validate checks if the SyncMapping has valid field values.
func (m *SyncMapping) Validate() error {
	if m.SourceAccountID == "" {
		return fmt.Errorf("source account id is required")
	}
	if m.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	if m.InternalTaskID == "" {
		return fmt.Errorf("internal task id is required")
	}
	return nil
}

// Key returns the natural key of the mapping.
func (m SyncMapping) Key() string {
	return m.SourceAccountID + "\x00" + m.ExternalID
}
