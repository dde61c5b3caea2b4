package reconcile

import (
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/detect"
)

// Phase is the stage a pass is in.
type Phase int

const (
	Idle Phase = iota
	Polling
	Detecting
	Processing
	RecordingMapping
	RefreshingViews
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Detecting:
		return "detecting"
	case Processing:
		return "processing"
	case RecordingMapping:
		return "recording_mapping"
	case RefreshingViews:
		return "refreshing_views"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Outcome is what happened to one polled assignment.
type Outcome struct {
	ExternalID string      `json:"external_id"`
	Kind       detect.Kind `json:"kind"`

	// TaskID is the task created or updated, or the mapped task when
	// unchanged.
	TaskID string `json:"task_id,omitempty"`

	// PlacedLists holds the ids of lists the new task was added to.
	PlacedLists []string `json:"placed_lists,omitempty"`

	// Malformed is set when the assignment was rejected before detection.
	Malformed bool `json:"malformed,omitempty"`

	Err      error    `json:"-"`
	Warnings []string `json:"warnings,omitempty"`
}

// Failed reports whether the item could not be processed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Run is the record of one pass for one source account.
type Run struct {
	SourceAccountID string
	Owner           string
	Phase           Phase

	StartedAt  time.Time
	FinishedAt time.Time

	// Polled is the number of assignments the source returned.
	Polled    int
	Decisions []detect.Decision
	Outcomes  []Outcome

	// Err is set when the pass ended in Failed.
	Err error
}

// Summary counts outcomes of a pass.
type Summary struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Summary tallies outcomes. Failed items are not counted under their kind.
func (r *Run) Summary() Summary {
	var s Summary
	for _, o := range r.Outcomes {
		if o.Failed() {
			s.Failed++
			continue
		}
		switch o.Kind {
		case detect.New:
			s.New++
		case detect.Updated:
			s.Updated++
		case detect.Unchanged:
			s.Unchanged++
		}
	}
	return s
}

// FailedOutcomes returns only the outcomes that carry an error.
func (r *Run) FailedOutcomes() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Duration is how long the pass took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
