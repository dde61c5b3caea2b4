package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// CreateTask creates a task and returns its id.
func (c *Client) CreateTask(ctx context.Context, owner, name, description string, dueAt time.Time) (string, error) {
	var resp struct {
		Task json.RawMessage `json:"task"`
	}
	err := c.call(ctx, "AIPrioritizedTask/createTask", map[string]any{
		"owner":       owner,
		"name":        name,
		"description": description,
		"dueDate":     isoTime(dueAt),
	}, &resp)
	if err != nil {
		return "", err
	}
	id := decodeID(resp.Task)
	if id == "" {
		return "", fmt.Errorf("AIPrioritizedTask/createTask: response has no task id")
	}
	return id, nil
}

// UpdateTask sends only the fields set in upd. The service may answer with
// the task id or the full task; with only an id, the returned task carries
// the id and the updated fields.
func (c *Client) UpdateTask(ctx context.Context, id string, upd schema.TaskUpdate) (*schema.Task, error) {
	payload := map[string]any{"task": id}
	if upd.Name != nil {
		payload["newName"] = *upd.Name
	}
	if upd.Description != nil {
		payload["newDescription"] = *upd.Description
	}
	if upd.DueAt != nil {
		payload["newDueDate"] = isoTime(*upd.DueAt)
	}
	if upd.Effort != nil {
		payload["newEffort"] = *upd.Effort
	}
	if upd.Importance != nil {
		payload["newImportance"] = *upd.Importance
	}
	if upd.Difficulty != nil {
		payload["newDifficulty"] = *upd.Difficulty
	}

	var resp struct {
		Task json.RawMessage `json:"task"`
	}
	if err := c.call(ctx, "AIPrioritizedTask/updateTask", payload, &resp); err != nil {
		return nil, err
	}

	if task, ok := decodeTask(resp.Task); ok {
		return task, nil
	}
	task := &schema.Task{ID: id}
	upd.Apply(task)
	return task, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (*schema.Task, error) {
	var resp struct {
		Task json.RawMessage `json:"task"`
	}
	if err := c.call(ctx, "AIPrioritizedTask/getTask", map[string]any{"task": id}, &resp); err != nil {
		return nil, err
	}
	task, ok := decodeTask(resp.Task)
	if !ok {
		return nil, fmt.Errorf("AIPrioritizedTask/getTask: response has no task")
	}
	return task, nil
}

// CompleteTask marks a task done.
func (c *Client) CompleteTask(ctx context.Context, id string) error {
	return c.call(ctx, "AIPrioritizedTask/completeTask", map[string]any{"task": id}, nil)
}

// SnoozeTask moves a task's due date to until. When the service answers with
// only an id, the task is fetched.
func (c *Client) SnoozeTask(ctx context.Context, id string, until time.Time) (*schema.Task, error) {
	var resp struct {
		Task json.RawMessage `json:"task"`
	}
	err := c.call(ctx, "AIPrioritizedTask/snoozeTask", map[string]any{
		"task":       id,
		"newDueDate": isoTime(until),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if task, ok := decodeTask(resp.Task); ok {
		return task, nil
	}
	return c.GetTask(ctx, id)
}

// PrioritizedTasks returns the owner's tasks in the service's priority order.
func (c *Client) PrioritizedTasks(ctx context.Context, owner string) ([]*schema.Task, error) {
	var resp struct {
		Tasks []*schema.Task `json:"tasks"`
	}
	if err := c.call(ctx, "AIPrioritizedTask/getPrioritizedTasks", map[string]any{"owner": owner}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// decodeTask accepts a task object. A bare id string or null is not a task.
func decodeTask(raw json.RawMessage) (*schema.Task, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var t schema.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false
	}
	return &t, true
}

// decodeID reads an id from either a bare string or an object with "_id".
func decodeID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var id string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &id); err != nil {
			return ""
		}
		return id
	}
	var obj struct {
		ID string `json:"_id"`
	}
	if raw[0] != '{' || json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	return obj.ID
}
