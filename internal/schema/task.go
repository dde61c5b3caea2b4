package schema

import (
	"fmt"
	"time"
)

// Task is an entry in the user's task store.
type Task struct {
	ID          string    `json:"_id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"dueDate"`
	Completed   bool      `json:"completed"`

	// Scoring inputs. Nil when the user never set them.
	Effort     *int `json:"effort,omitempty"`
	Importance *int `json:"importance,omitempty"`
	Difficulty *int `json:"difficulty,omitempty"`

	// PriorityScore is computed by the store and only read here.
	PriorityScore float64 `json:"priorityScore"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(t.Name))
	}
	if t.DueAt.IsZero() {
		return fmt.Errorf("due date is required")
	}
	return nil
}

// TaskUpdate is a partial update. A nil field leaves the stored value alone.
type TaskUpdate struct {
	Name        *string
	Description *string
	DueAt       *time.Time
	Effort      *int
	Importance  *int
	Difficulty  *int
}

// IsEmpty reports whether the update would change nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.DueAt == nil &&
		u.Effort == nil && u.Importance == nil && u.Difficulty == nil
}

// Apply copies every non-nil field of u onto t.
func (u TaskUpdate) Apply(t *Task) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.DueAt != nil {
		t.DueAt = *u.DueAt
	}
	if u.Effort != nil {
		t.Effort = u.Effort
	}
	if u.Importance != nil {
		t.Importance = u.Importance
	}
	if u.Difficulty != nil {
		t.Difficulty = u.Difficulty
	}
}
