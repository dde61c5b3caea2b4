// Package materialize turns change decisions into tasks in the task store.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/detect"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// DefaultDueOffset is how far from now a task is due when its assignment has
// no due date.
const DefaultDueOffset = 7 * 24 * time.Hour

// ErrNothingToMaterialize is returned for Unchanged decisions.
var ErrNothingToMaterialize = errors.New("nothing to materialize for unchanged assignment")

// TaskStore is the part of the task store the materializer writes to.
type TaskStore interface {
	CreateTask(ctx context.Context, owner, name, description string, dueAt time.Time) (string, error)
	UpdateTask(ctx context.Context, id string, upd schema.TaskUpdate) (*schema.Task, error)
}

// Config holds materializer settings.
type Config struct {
	// DueOffset is added to now for assignments without a due date.
	DueOffset time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default materializer configuration.
func DefaultConfig() Config {
	return Config{
		DueOffset: DefaultDueOffset,
		Now:       time.Now,
	}
}

// Result describes what a decision was materialized into.
type Result struct {
	TaskID  string
	DueAt   time.Time
	Created bool
}

// Materializer creates and updates tasks for classified assignments.
type Materializer struct {
	store TaskStore
	cfg   Config
}

// New creates a Materializer. Zero config fields fall back to defaults.
func New(store TaskStore, cfg Config) *Materializer {
	if cfg.DueOffset <= 0 {
		cfg.DueOffset = DefaultDueOffset
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Materializer{store: store, cfg: cfg}
}

// Materialize applies one decision to the task store.
//
// New assignments become tasks owned by owner. The due date is the
// assignment's, or now plus the configured offset. Updated assignments refresh
// name, description and due date of the mapped task; scoring fields are
// never sent. Unchanged decisions return ErrNothingToMaterialize.
func (m *Materializer) Materialize(ctx context.Context, owner string, d detect.Decision) (Result, error) {
	switch d.Kind {
	case detect.New:
		return m.create(ctx, owner, d.Assignment)
	case detect.Updated:
		return m.update(ctx, d)
	case detect.Unchanged:
		return Result{}, ErrNothingToMaterialize
	default:
		return Result{}, fmt.Errorf("unknown decision kind %d", d.Kind)
	}
}

func (m *Materializer) create(ctx context.Context, owner string, raw schema.RawAssignment) (Result, error) {
	due := m.dueFor(raw)
	description := ""
	if raw.Description != nil {
		description = *raw.Description
	}

	id, err := m.store.CreateTask(ctx, owner, raw.Name, description, due)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create task for %s: %w", raw.ExternalID, err)
	}
	if id == "" {
		return Result{}, fmt.Errorf("task store returned no id for %s", raw.ExternalID)
	}
	return Result{TaskID: id, DueAt: due, Created: true}, nil
}

func (m *Materializer) update(ctx context.Context, d detect.Decision) (Result, error) {
	if d.InternalTaskID == "" {
		return Result{}, fmt.Errorf("updated assignment %s has no mapped task", d.Assignment.ExternalID)
	}

	raw := d.Assignment
	name := raw.Name
	upd := schema.TaskUpdate{
		Name:        &name,
		Description: raw.Description,
		DueAt:       raw.DueAt,
	}

	task, err := m.store.UpdateTask(ctx, d.InternalTaskID, upd)
	if err != nil {
		return Result{}, fmt.Errorf("failed to update task %s for %s: %w", d.InternalTaskID, raw.ExternalID, err)
	}

	res := Result{TaskID: d.InternalTaskID}
	switch {
	case raw.DueAt != nil:
		res.DueAt = *raw.DueAt
	case task != nil:
		res.DueAt = task.DueAt
	}
	return res, nil
}

func (m *Materializer) dueFor(raw schema.RawAssignment) time.Time {
	if raw.DueAt != nil {
		return *raw.DueAt
	}
	return m.cfg.Now().Add(m.cfg.DueOffset)
}
