package reconcile

import (
	"context"
	"time"

	"github.com/mschirtzinger/tasksync/internal/detect"
	"github.com/mschirtzinger/tasksync/internal/materialize"
	"github.com/mschirtzinger/tasksync/internal/placement"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Poller fetches the current assignments of a source account.
//
// The account is passed by value; implementations read Details but must not
// expect changes to it to persist.
type Poller interface {
	Poll(ctx context.Context, acct schema.SourceAccount) ([]schema.RawAssignment, error)
}

// MappingStore reads and writes identity mappings.
type MappingStore interface {
	// MappingsForSource returns every mapping of one source account.
	MappingsForSource(ctx context.Context, sourceID string) ([]schema.SyncMapping, error)

	// RecordMapping upserts on (source account, external id). Recording the
	// same mapping twice must leave exactly one.
	RecordMapping(ctx context.Context, m schema.SyncMapping) error
}

// Materializer applies one decision to the task store.
type Materializer interface {
	Materialize(ctx context.Context, owner string, d detect.Decision) (materialize.Result, error)
}

// Placer adds a new task to the lists whose window contains its due date.
type Placer interface {
	Place(ctx context.Context, owner, taskID string, dueAt time.Time) (placement.Result, error)
}

// StatusRecorder writes the outcome of a pass back to the source account.
type StatusRecorder interface {
	UpdateSourceStatus(ctx context.Context, id string, status schema.SourceStatus, lastErr string, syncedAt time.Time) error
}

// ViewRefresher is told when a pass has finished so that task and list views
// can reload. Errors are logged and never fail the pass.
type ViewRefresher interface {
	Refresh(ctx context.Context, owner string, run *Run) error
}

// ViewRefresherFunc adapts a function to ViewRefresher.
type ViewRefresherFunc func(ctx context.Context, owner string, run *Run) error

// Refresh calls f.
func (f ViewRefresherFunc) Refresh(ctx context.Context, owner string, run *Run) error {
	return f(ctx, owner, run)
}
