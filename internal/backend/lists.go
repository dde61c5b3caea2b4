package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ListsForUser returns every list the owner has.
func (c *Client) ListsForUser(ctx context.Context, owner string) ([]schema.TodoList, error) {
	var resp struct {
		Lists []schema.TodoList `json:"lists"`
	}
	if err := c.call(ctx, "TodoList/getListsForUser", map[string]any{"user": owner}, &resp); err != nil {
		return nil, err
	}
	return resp.Lists, nil
}

// ActiveLists returns the owner's lists whose window contains at.
func (c *Client) ActiveLists(ctx context.Context, owner string, at time.Time) ([]schema.TodoList, error) {
	lists, err := c.ListsForUser(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []schema.TodoList
	for _, l := range lists {
		if l.Contains(at) {
			out = append(out, l)
		}
	}
	return out, nil
}

// AddItem adds a task to a list with an item due date.
func (c *Client) AddItem(ctx context.Context, listID, taskID string, dueAt time.Time) error {
	return c.call(ctx, "TodoList/addListItem", map[string]any{
		"list":        listID,
		"item":        taskID,
		"itemDueDate": isoTime(dueAt),
	}, nil)
}

// CreateList creates a list and fills in its id.
func (c *Client) CreateList(ctx context.Context, l *schema.TodoList) error {
	recurrence := l.Recurrence
	if recurrence == "" {
		recurrence = schema.RecurrenceNone
	}
	var resp struct {
		List json.RawMessage `json:"list"`
	}
	err := c.call(ctx, "TodoList/createList", map[string]any{
		"owner":              l.Owner,
		"name":               l.Name,
		"startTime":          isoTime(l.StartTime),
		"endTime":            isoTime(l.EndTime),
		"autoClearCompleted": l.AutoClearCompleted,
		"recurrenceType":     string(recurrence),
	}, &resp)
	if err != nil {
		return err
	}
	id := decodeID(resp.List)
	if id == "" {
		return fmt.Errorf("TodoList/createList: response has no list id")
	}
	l.ID = id
	l.Recurrence = recurrence
	return nil
}
