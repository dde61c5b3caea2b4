package schema

import (
	"fmt"
	"strings"
	"time"
)

// RecurrenceType is how a list's window rolls forward.
type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// ListCategory tags lists with a structural role.
type ListCategory string

const (
	CategoryNone             ListCategory = ""
	CategoryDefaultRecurring ListCategory = "default_recurring"
)

// DefaultRecurringListNames are the names that mark an untagged list as a
// default recurring list.
var DefaultRecurringListNames = []string{"Daily", "Weekly", "Monthly"}

// TodoList is a time-windowed list of tasks.
type TodoList struct {
	ID                 string         `json:"_id"`
	Owner              string         `json:"owner"`
	Name               string         `json:"name"`
	StartTime          time.Time      `json:"startTime"`
	EndTime            time.Time      `json:"endTime"`
	AutoClearCompleted bool           `json:"autoClearCompleted"`
	Recurrence         RecurrenceType `json:"recurrenceType"`
	Category           ListCategory   `json:"category,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// Validate checks if the TodoList has valid field values.
func (l *TodoList) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	return l.ValidateDraft()
}

// ValidateDraft checks a list that has not been stored yet. The id is left
// to the store.
func (l *TodoList) ValidateDraft() error {
	if l.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	if l.StartTime.After(l.EndTime) {
		return fmt.Errorf("start time %s is after end time %s",
			l.StartTime.Format(time.RFC3339), l.EndTime.Format(time.RFC3339))
	}
	switch l.Recurrence {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, "":
	default:
		return fmt.Errorf("invalid recurrence type %q", l.Recurrence)
	}
	return nil
}

// Contains reports whether ts falls inside [StartTime, EndTime], inclusive on
// both ends.
func (l *TodoList) Contains(ts time.Time) bool {
	return !ts.Before(l.StartTime) && !ts.After(l.EndTime)
}

// ListItem is a task placed on a list.
type ListItem struct {
	ListID    string     `json:"list"`
	TaskID    string     `json:"item"`
	DueAt     *time.Time `json:"itemDueDate,omitempty"`
	Completed bool       `json:"completed"`
	AddedAt   time.Time  `json:"addedAt"`
}

// NameMatcher decides whether a list name is one of the default recurring
// names. Matching is case-insensitive and ignores surrounding whitespace.
type NameMatcher map[string]struct{}

// NewNameMatcher builds a matcher for names. With no names it falls back to
// DefaultRecurringListNames.
func NewNameMatcher(names ...string) NameMatcher {
	if len(names) == 0 {
		names = DefaultRecurringListNames
	}
	m := make(NameMatcher, len(names))
	for _, n := range names {
		m[normalizeListName(n)] = struct{}{}
	}
	return m
}

// IsDefaultRecurring reports whether l is a default recurring list, either by
// its category tag or, for untagged lists, by name.
func (m NameMatcher) IsDefaultRecurring(l TodoList) bool {
	if l.Category == CategoryDefaultRecurring {
		return true
	}
	if l.Category != CategoryNone {
		return false
	}
	_, ok := m[normalizeListName(l.Name)]
	return ok
}

func normalizeListName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
