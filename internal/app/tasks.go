package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Tasks returns the owner's open tasks, highest priority first.
func (s *Session) Tasks(ctx context.Context) ([]*schema.Task, error) {
	var out []*schema.Task
	err := s.errors.track(DomainTasks, func() error {
		var err error
		out, err = s.store.PrioritizedTasks(ctx, s.owner)
		return err
	})
	return out, err
}

// Lists returns every list of the owner.
func (s *Session) Lists(ctx context.Context) ([]schema.TodoList, error) {
	var out []schema.TodoList
	err := s.errors.track(DomainLists, func() error {
		var err error
		out, err = s.store.ListsForUser(ctx, s.owner)
		return err
	})
	return out, err
}

// ActiveLists returns the owner's lists whose window contains now.
func (s *Session) ActiveLists(ctx context.Context) ([]schema.TodoList, error) {
	var out []schema.TodoList
	err := s.errors.track(DomainLists, func() error {
		var err error
		out, err = s.store.ActiveLists(ctx, s.owner, s.now())
		return err
	})
	return out, err
}

// CreateList validates and stores a list for the owner.
func (s *Session) CreateList(ctx context.Context, l *schema.TodoList) error {
	return s.errors.track(DomainLists, func() error {
		l.Owner = s.owner
		l.Name = strings.TrimSpace(l.Name)
		if l.Recurrence == "" {
			l.Recurrence = schema.RecurrenceNone
		}
		if err := l.ValidateDraft(); err != nil {
			return err
		}
		if err := s.store.CreateList(ctx, l); err != nil {
			return fmt.Errorf("failed to create list: %w", err)
		}
		return nil
	})
}

// ListItems returns the items of one of the owner's lists when the store
// supports it.
func (s *Session) ListItems(ctx context.Context, listID string) ([]schema.ListItem, error) {
	var out []schema.ListItem
	err := s.errors.track(DomainLists, func() error {
		lister, ok := s.store.(ItemLister)
		if !ok {
			return ErrListItemsUnsupported
		}
		l, err := lister.GetList(ctx, listID)
		if err != nil {
			return err
		}
		if l.Owner != s.owner {
			return fmt.Errorf("list %s: %w", listID, errNotOwner)
		}
		out, err = lister.ItemsForList(ctx, listID)
		return err
	})
	return out, err
}

// CompleteTask marks one task done.
func (s *Session) CompleteTask(ctx context.Context, id string) error {
	return s.errors.track(DomainTasks, func() error {
		if err := s.store.CompleteTask(ctx, id); err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		return nil
	})
}

// SnoozeTask pushes a task's due date to until, which must be in the future.
func (s *Session) SnoozeTask(ctx context.Context, id string, until time.Time) (*schema.Task, error) {
	var task *schema.Task
	err := s.errors.track(DomainTasks, func() error {
		if !until.After(s.now()) {
			return fmt.Errorf("snooze time %s is not in the future", until.Format(time.RFC3339))
		}
		var err error
		task, err = s.store.SnoozeTask(ctx, id, until)
		if err != nil {
			return fmt.Errorf("failed to snooze task: %w", err)
		}
		return nil
	})
	return task, err
}
