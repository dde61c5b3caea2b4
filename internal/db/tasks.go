package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Scoring defaults for tasks the user has not rated yet.
const (
	defaultImportance = 3
	defaultEffort     = 3
	defaultDifficulty = 3
)

const taskColumns = `id, owner, name, description, due_at, completed,
	effort, importance, difficulty, created_at, updated_at`

// CreateTask inserts a new task and returns its id.
func (db *DB) CreateTask(ctx context.Context, owner, name, description string, dueAt time.Time) (string, error) {
	now := db.now()
	task := schema.Task{
		ID:          uuid.NewString(),
		Owner:       owner,
		Name:        name,
		Description: description,
		DueAt:       dueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := task.Validate(); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}

	_, err := db.conn.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
	VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, NULL, ?, ?)`,
		task.ID,
		task.Owner,
		task.Name,
		task.Description,
		formatTime(task.DueAt),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert task: %w", err)
	}
	return task.ID, nil
}

// UpdateTask applies a partial update. Nil fields in upd keep their stored
// values.
func (db *DB) UpdateTask(ctx context.Context, id string, upd schema.TaskUpdate) (*schema.Task, error) {
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.DueAt != nil {
		sets = append(sets, "due_at = ?")
		args = append(args, formatTime(*upd.DueAt))
	}
	if upd.Effort != nil {
		sets = append(sets, "effort = ?")
		args = append(args, *upd.Effort)
	}
	if upd.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *upd.Importance)
	}
	if upd.Difficulty != nil {
		sets = append(sets, "difficulty = ?")
		args = append(args, *upd.Difficulty)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(db.now()), id)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	return db.GetTask(ctx, id)
}

// CompleteTask marks a task done. Completed tasks drop out of
// PrioritizedTasks.
func (db *DB) CompleteTask(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, updated_at = ? WHERE id = ?`,
		formatTime(db.now()), id)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// SnoozeTask moves a task's due date to until.
func (db *DB) SnoozeTask(ctx context.Context, id string, until time.Time) (*schema.Task, error) {
	return db.UpdateTask(ctx, id, schema.TaskUpdate{DueAt: &until})
}

// GetTask returns one task, or ErrNotFound.
func (db *DB) GetTask(ctx context.Context, id string) (*schema.Task, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	task.PriorityScore = scoreTask(task, db.now())
	return task, nil
}

// PrioritizedTasks returns the owner's incomplete tasks ordered by descending
// priority score, then by due date.
func (db *DB) PrioritizedTasks(ctx context.Context, owner string) ([]*schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE owner = ? AND completed = 0`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	now := db.now()
	var tasks []*schema.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.PriorityScore = scoreTask(task, now)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].PriorityScore != tasks[j].PriorityScore {
			return tasks[i].PriorityScore > tasks[j].PriorityScore
		}
		return tasks[i].DueAt.Before(tasks[j].DueAt)
	})
	return tasks, nil
}

// scoreTask rates a task from its importance, difficulty and effort, scaled
// by how close the due date is. Overdue tasks get the full urgency factor.
func scoreTask(t *schema.Task, now time.Time) float64 {
	importance := valueOr(t.Importance, defaultImportance)
	effort := valueOr(t.Effort, defaultEffort)
	difficulty := valueOr(t.Difficulty, defaultDifficulty)

	days := t.DueAt.Sub(now).Hours() / 24
	urgency := 2.0
	if days > 0 {
		urgency = 1 + 1/(days+1)
	}

	base := float64(2*importance+difficulty) / float64(max(effort, 1))
	return math.Round(base*urgency*100) / 100
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var (
		task                 schema.Task
		dueAt                string
		completed            int
		effort, imp, diff    sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(&task.ID, &task.Owner, &task.Name, &task.Description, &dueAt,
		&completed, &effort, &imp, &diff, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	task.Completed = completed != 0
	task.Effort = nullToInt(effort)
	task.Importance = nullToInt(imp)
	task.Difficulty = nullToInt(diff)

	var err error
	if task.DueAt, err = parseTime(dueAt); err != nil {
		return nil, fmt.Errorf("failed to parse due_at: %w", err)
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &task, nil
}
