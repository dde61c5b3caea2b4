// Package placement adds newly created tasks to the user's default recurring
// lists whose time window contains the task's due date.
package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ErrOverdue is returned when asked to place a task whose due date has passed.
var ErrOverdue = errors.New("due date is in the past")

// ListStore is the part of the list store the engine uses.
type ListStore interface {
	ListsForUser(ctx context.Context, owner string) ([]schema.TodoList, error)
	AddItem(ctx context.Context, listID, taskID string, dueAt time.Time) error
}

// Candidates returns the default recurring lists whose window contains dueAt.
// Both window ends are inclusive. Input order is kept.
func Candidates(lists []schema.TodoList, dueAt time.Time, matcher schema.NameMatcher) []schema.TodoList {
	var out []schema.TodoList
	for _, l := range lists {
		if !matcher.IsDefaultRecurring(l) {
			continue
		}
		if !l.Contains(dueAt) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Config holds placement settings.
type Config struct {
	// ListNames are the names that mark an untagged list as default
	// recurring. Empty means Daily, Weekly and Monthly.
	ListNames []string

	Now    func() time.Time
	Logger zerolog.Logger
}

// Result reports which lists received the task.
type Result struct {
	Placed []string
	Failed map[string]error
}

// Engine places tasks into lists.
type Engine struct {
	store   ListStore
	matcher schema.NameMatcher
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates a placement Engine.
func New(store ListStore, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:   store,
		matcher: schema.NewNameMatcher(cfg.ListNames...),
		now:     now,
		logger:  cfg.Logger.With().Str("component", "placement").Logger(),
	}
}

// Place adds taskID to every candidate list of owner, with dueAt as the item
// due date. A failure on one list is recorded in Result.Failed and the
// remaining lists are still tried. Zero candidates is not an error.
func (e *Engine) Place(ctx context.Context, owner, taskID string, dueAt time.Time) (Result, error) {
	if dueAt.Before(e.now()) {
		return Result{}, ErrOverdue
	}

	lists, err := e.store.ListsForUser(ctx, owner)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load lists for %s: %w", owner, err)
	}

	var res Result
	for _, l := range Candidates(lists, dueAt, e.matcher) {
		if err := e.store.AddItem(ctx, l.ID, taskID, dueAt); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]error)
			}
			res.Failed[l.ID] = err
			e.logger.Warn().Err(err).
				Str("list", l.Name).
				Str("task", taskID).
				Msg("failed to add task to list")
			continue
		}
		res.Placed = append(res.Placed, l.ID)
	}
	return res, nil
}
