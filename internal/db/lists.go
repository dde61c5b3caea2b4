package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

const listColumns = `id, owner, name, start_time, end_time,
	auto_clear_completed, recurrence, category, created_at`

// CreateList stores a new list. An empty ID is filled in.
func (db *DB) CreateList(ctx context.Context, l *schema.TodoList) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Recurrence == "" {
		l.Recurrence = schema.RecurrenceNone
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = db.now()
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid list: %w", err)
	}

	_, err := db.conn.ExecContext(ctx, `INSERT INTO todo_lists (`+listColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.Owner,
		l.Name,
		formatTime(l.StartTime),
		formatTime(l.EndTime),
		boolToInt(l.AutoClearCompleted),
		string(l.Recurrence),
		string(l.Category),
		formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert list %s: %w", l.Name, err)
	}
	return nil
}

// GetList returns one list, or ErrNotFound.
func (db *DB) GetList(ctx context.Context, id string) (*schema.TodoList, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+listColumns+` FROM todo_lists WHERE id = ?`, id)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list %s: %w", id, err)
	}
	return l, nil
}

// ListsForUser returns every list owned by owner, ordered by window start.
func (db *DB) ListsForUser(ctx context.Context, owner string) ([]schema.TodoList, error) {
	return db.queryLists(ctx,
		`SELECT `+listColumns+` FROM todo_lists WHERE owner = ? ORDER BY start_time ASC, name ASC`,
		owner)
}

// ActiveLists returns the owner's lists whose window contains at.
func (db *DB) ActiveLists(ctx context.Context, owner string, at time.Time) ([]schema.TodoList, error) {
	ts := formatTime(at)
	return db.queryLists(ctx, `
	SELECT `+listColumns+` FROM todo_lists
	WHERE owner = ? AND start_time <= ? AND end_time >= ?
	ORDER BY start_time ASC, name ASC`,
		owner, ts, ts)
}

func (db *DB) queryLists(ctx context.Context, query string, args ...any) ([]schema.TodoList, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var out []schema.TodoList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}
	return out, nil
}

// AddItem places a task on a list with an item due date. Adding the same task
// to the same list again refreshes the due date.
func (db *DB) AddItem(ctx context.Context, listID, taskID string, dueAt time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO list_items (list_id, task_id, due_at, completed, added_at)
	VALUES (?, ?, ?, 0, ?)
	ON CONFLICT(list_id, task_id) DO UPDATE SET
		due_at = excluded.due_at`,
		listID, taskID, formatTime(dueAt), formatTime(db.now()))
	if err != nil {
		return fmt.Errorf("failed to add task %s to list %s: %w", taskID, listID, err)
	}
	return nil
}

// ItemsForList returns the items of one list in insertion order.
func (db *DB) ItemsForList(ctx context.Context, listID string) ([]schema.ListItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT list_id, task_id, due_at, completed, added_at
	FROM list_items WHERE list_id = ?
	ORDER BY added_at ASC, task_id ASC`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query list items: %w", err)
	}
	defer rows.Close()

	var out []schema.ListItem
	for rows.Next() {
		var (
			item      schema.ListItem
			dueAt     sql.NullString
			completed int
			addedAt   string
		)
		if err := rows.Scan(&item.ListID, &item.TaskID, &dueAt, &completed, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan list item: %w", err)
		}
		item.DueAt = nullStringToTime(dueAt)
		item.Completed = completed != 0
		if item.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, fmt.Errorf("failed to parse added_at: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating list items: %w", err)
	}
	return out, nil
}

func scanList(row rowScanner) (*schema.TodoList, error) {
	var (
		l                    schema.TodoList
		start, end, created  string
		autoClear            int
		recurrence, category string
	)
	if err := row.Scan(&l.ID, &l.Owner, &l.Name, &start, &end, &autoClear,
		&recurrence, &category, &created); err != nil {
		return nil, err
	}
	l.AutoClearCompleted = autoClear != 0
	l.Recurrence = schema.RecurrenceType(recurrence)
	l.Category = schema.ListCategory(category)

	var err error
	if l.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if l.EndTime, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if l.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &l, nil
}
