package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// fakeService records request bodies per path and answers from a table.
type fakeService struct {
	t         *testing.T
	responses map[string]func(body map[string]any) (int, any)
	requests  map[string][]map[string]any
}

func newFakeService(t *testing.T) (*fakeService, *Client) {
	t.Helper()
	f := &fakeService{t: t, responses: map[string]func(map[string]any) (int, any){}, requests: map[string][]map[string]any{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api/", SessionToken: "sess-1", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return f, c
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, http.MethodPost, r.Method)
	assert.Equal(f.t, "application/json", r.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], body)

	handler, ok := f.responses[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	status, resp := handler(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeService) on(path string, status int, resp any) {
	f.responses[path] = func(map[string]any) (int, any) { return status, resp }
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "  "})
	assert.Error(t, err)
}

func TestCreateTask(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/createTask", http.StatusOK, map[string]any{"task": "t-42"})

	due := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	id, err := c.CreateTask(context.Background(), "alice", "Essay", "", due)
	require.NoError(t, err)
	assert.Equal(t, "t-42", id)

	req := f.requests["/api/AIPrioritizedTask/createTask"][0]
	assert.Equal(t, "alice", req["owner"])
	assert.Equal(t, "Essay", req["name"])
	assert.Equal(t, "", req["description"])
	assert.Equal(t, "2026-03-06T17:00:00.000Z", req["dueDate"])
	assert.Equal(t, "sess-1", req["sessionToken"])
}

func TestCreateTask_TaskObjectResponse(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/createTask", http.StatusOK, map[string]any{"task": map[string]any{
		"_id": "t-42", "owner": "alice", "name": "Essay", "dueDate": "2026-03-06T17:00:00Z",
	}})

	id, err := c.CreateTask(context.Background(), "alice", "Essay", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "t-42", id)
}

func TestCreateTask_NoID(t *testing.T) {
	for name, task := range map[string]any{
		"missing":      nil,
		"empty object": map[string]any{"name": "Essay"},
		"number":       42,
		"empty string": "",
	} {
		t.Run(name, func(t *testing.T) {
			f, c := newFakeService(t)
			f.on("/api/AIPrioritizedTask/createTask", http.StatusOK, map[string]any{"task": task})

			_, err := c.CreateTask(context.Background(), "alice", "Essay", "", time.Now())
			assert.ErrorContains(t, err, "response has no task id")
		})
	}
}

func TestCreateTask_DomainError(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/createTask", http.StatusOK, map[string]any{"error": "Invalid session token"})

	_, err := c.CreateTask(context.Background(), "alice", "Essay", "", time.Now())
	require.Error(t, err)

	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Invalid session token", de.Message)
	assert.Equal(t, "AIPrioritizedTask/createTask", de.Action)
}

func TestCall_ErrorEnvelopeOnHTTPError(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/TodoList/addListItem", http.StatusBadRequest, map[string]any{"error": "List not found"})

	err := c.AddItem(context.Background(), "l1", "t1", time.Now())
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusBadRequest, de.Status)
}

func TestCall_TransportAndStatusErrors(t *testing.T) {
	t.Run("status without envelope", func(t *testing.T) {
		f, c := newFakeService(t)
		f.on("/api/TodoList/getListsForUser", http.StatusInternalServerError, "boom")

		_, err := c.ListsForUser(context.Background(), "alice")
		require.Error(t, err)
		var de *DomainError
		assert.False(t, errors.As(err, &de))
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := New(Config{BaseURL: url, Timeout: time.Second})
		require.NoError(t, err)
		_, err = c.ListsForUser(context.Background(), "alice")
		require.Error(t, err)
		var de *DomainError
		assert.False(t, errors.As(err, &de))
	})

	t.Run("not json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()

		c, err := New(Config{BaseURL: srv.URL})
		require.NoError(t, err)
		err = c.AddItem(context.Background(), "l", "t", time.Now())
		assert.ErrorContains(t, err, "invalid JSON response")
	})
}

func TestUpdateTask_OnlySetFields(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/updateTask", http.StatusOK, map[string]any{"task": "t-1"})

	name := "Essay v2"
	task, err := c.UpdateTask(context.Background(), "t-1", schema.TaskUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "t-1", task.ID)
	assert.Equal(t, "Essay v2", task.Name)

	req := f.requests["/api/AIPrioritizedTask/updateTask"][0]
	assert.Equal(t, "t-1", req["task"])
	assert.Equal(t, "Essay v2", req["newName"])
	for _, k := range []string{"newDescription", "newDueDate", "newEffort", "newImportance", "newDifficulty"} {
		assert.NotContains(t, req, k)
	}
}

func TestUpdateTask_FullTaskResponse(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/updateTask", http.StatusOK, map[string]any{"task": map[string]any{
		"_id": "t-1", "owner": "alice", "name": "Essay", "dueDate": "2026-03-06T17:00:00Z", "priorityScore": 4.5,
	}})

	task, err := c.UpdateTask(context.Background(), "t-1", schema.TaskUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "alice", task.Owner)
	assert.Equal(t, 4.5, task.PriorityScore)
	assert.Equal(t, time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC), task.DueAt)
}

func TestListsForUser_AndActive(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/TodoList/getListsForUser", http.StatusOK, map[string]any{"lists": []map[string]any{
		{"_id": "l1", "owner": "alice", "name": "Weekly", "startTime": "2026-03-02T00:00:00Z", "endTime": "2026-03-08T23:59:59Z", "recurrenceType": "weekly"},
		{"_id": "l2", "owner": "alice", "name": "Old", "startTime": "2026-01-01T00:00:00Z", "endTime": "2026-01-31T23:59:59Z"},
	}})

	lists, err := c.ListsForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, schema.RecurrenceWeekly, lists[0].Recurrence)
	assert.Equal(t, "alice", f.requests["/api/TodoList/getListsForUser"][0]["user"])

	active, err := c.ActiveLists(context.Background(), "alice", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "l1", active[0].ID)
}

func TestAddItem_And_CreateList(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/TodoList/addListItem", http.StatusOK, map[string]any{})
	f.on("/api/TodoList/createList", http.StatusOK, map[string]any{"list": "l-9"})

	due := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	require.NoError(t, c.AddItem(context.Background(), "l1", "t1", due))
	req := f.requests["/api/TodoList/addListItem"][0]
	assert.Equal(t, "l1", req["list"])
	assert.Equal(t, "t1", req["item"])
	assert.Equal(t, "2026-03-06T17:00:00.000Z", req["itemDueDate"])

	l := &schema.TodoList{Owner: "alice", Name: "Daily", StartTime: due, EndTime: due.Add(time.Hour)}
	require.NoError(t, c.CreateList(context.Background(), l))
	assert.Equal(t, "l-9", l.ID)
	assert.Equal(t, "none", f.requests["/api/TodoList/createList"][0]["recurrenceType"])
}

func TestCreateList_ListObjectResponse(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/TodoList/createList", http.StatusOK, map[string]any{"list": map[string]any{"_id": "l-9", "name": "Daily"}})

	due := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	l := &schema.TodoList{Owner: "alice", Name: "Daily", StartTime: due, EndTime: due.Add(time.Hour)}
	require.NoError(t, c.CreateList(context.Background(), l))
	assert.Equal(t, "l-9", l.ID)
}

func TestCompleteAndSnoozeTask(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/completeTask", http.StatusOK, map[string]any{"task": "t-1"})
	f.on("/api/AIPrioritizedTask/snoozeTask", http.StatusOK, map[string]any{"task": "t-1"})
	f.on("/api/AIPrioritizedTask/getTask", http.StatusOK, map[string]any{"task": map[string]any{
		"_id": "t-1", "name": "Essay", "dueDate": "2026-03-09T17:00:00Z",
	}})

	require.NoError(t, c.CompleteTask(context.Background(), "t-1"))
	assert.Equal(t, "t-1", f.requests["/api/AIPrioritizedTask/completeTask"][0]["task"])

	until := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	task, err := c.SnoozeTask(context.Background(), "t-1", until)
	require.NoError(t, err)
	assert.Equal(t, until, task.DueAt)
	assert.Equal(t, "Essay", task.Name)

	req := f.requests["/api/AIPrioritizedTask/snoozeTask"][0]
	assert.Equal(t, "t-1", req["task"])
	assert.Equal(t, "2026-03-09T17:00:00.000Z", req["newDueDate"])
	assert.Len(t, f.requests["/api/AIPrioritizedTask/getTask"], 1, "an id-only answer is followed by a fetch")
}

func TestSnoozeTask_TaskObjectResponse(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/snoozeTask", http.StatusOK, map[string]any{"task": map[string]any{
		"_id": "t-1", "name": "Essay", "dueDate": "2026-03-09T17:00:00Z",
	}})

	task, err := c.SnoozeTask(context.Background(), "t-1", time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "t-1", task.ID)
	assert.Empty(t, f.requests["/api/AIPrioritizedTask/getTask"])
}

func TestPrioritizedTasks(t *testing.T) {
	f, c := newFakeService(t)
	f.on("/api/AIPrioritizedTask/getPrioritizedTasks", http.StatusOK, map[string]any{"tasks": []map[string]any{
		{"_id": "a", "name": "A", "dueDate": "2026-03-06T17:00:00Z", "priorityScore": 9},
		{"_id": "b", "name": "B", "dueDate": "2026-03-07T17:00:00Z", "priorityScore": 3},
	}})

	tasks, err := c.PrioritizedTasks(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
}
