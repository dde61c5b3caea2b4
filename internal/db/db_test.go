package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

var fixedNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

// openTestDB opens a fresh database in a temp dir with a fixed clock.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.now = func() time.Time { return fixedNow }
	return db
}

// createSource stores a minimal source account so mappings can reference it.
func createSource(t *testing.T, db *DB, id string) {
	t.Helper()
	require.NoError(t, db.CreateSource(context.Background(), &schema.SourceAccount{
		ID: id, Owner: "alice", Type: schema.SourceTypeFile, Name: id,
		Status: schema.StatusConnected, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}))
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrStr(s string) *string        { return &s }
func ptrInt(i int) *int              { return &i }

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"source_accounts", "sync_mappings", "tasks", "todo_lists", "list_items"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s missing", table)
	}

	require.NoError(t, db.InitSchema(), "schema init must be idempotent")
}

func TestClose_Twice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestSources_CRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	acct := &schema.SourceAccount{
		ID:        "src-1",
		Owner:     "alice",
		Type:      schema.SourceTypeFile,
		Name:      "Homework folder",
		Details:   map[string]string{"dir": "/tmp/hw"},
		Status:    schema.StatusConnected,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	require.NoError(t, db.CreateSource(ctx, acct))

	got, err := db.GetSource(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, "Homework folder", got.Name)
	assert.Equal(t, "/tmp/hw", got.Details["dir"])
	assert.Nil(t, got.LastSyncAt)

	synced := fixedNow.Add(time.Minute)
	require.NoError(t, db.UpdateSourceStatus(ctx, "src-1", schema.StatusError, "poll failed", synced))

	got, err = db.GetSource(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusError, got.Status)
	assert.Equal(t, "poll failed", got.LastError)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(synced))
	assert.Equal(t, "/tmp/hw", got.Details["dir"], "status update must not touch details")

	list, err := db.ListSources(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = db.ListSources(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)

	err = db.UpdateSourceStatus(ctx, "missing", schema.StatusConnected, "", synced)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetSource(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSource_RemovesMappings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	acct := &schema.SourceAccount{ID: "src-1", Owner: "alice", Type: schema.SourceTypeLMS,
		Name: "Canvas", Status: schema.StatusConnected, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, db.CreateSource(ctx, acct))
	createSource(t, db, "src-2")
	require.NoError(t, db.RecordMapping(ctx, schema.SyncMapping{SourceAccountID: "src-1", ExternalID: "a", InternalTaskID: "t1"}))
	require.NoError(t, db.RecordMapping(ctx, schema.SyncMapping{SourceAccountID: "src-2", ExternalID: "a", InternalTaskID: "t2"}))

	require.NoError(t, db.DeleteSource(ctx, "src-1"))

	_, err := db.GetSource(ctx, "src-1")
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := db.MappingsForSource(ctx, "src-1")
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = db.MappingsForSource(ctx, "src-2")
	require.NoError(t, err)
	assert.Len(t, m, 1, "other sources keep their mappings")

	require.NoError(t, db.DeleteSource(ctx, "src-1"), "delete is idempotent")
}

func TestRecordMapping_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	createSource(t, db, "s")
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := schema.SyncMapping{SourceAccountID: "s", ExternalID: "e1", InternalTaskID: "task-1", ExternalModifiedAt: &t1}

	require.NoError(t, db.RecordMapping(ctx, m))
	require.NoError(t, db.RecordMapping(ctx, m))

	rows, err := db.MappingsForSource(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	t2 := t1.Add(time.Hour)
	m.ExternalModifiedAt = &t2
	require.NoError(t, db.RecordMapping(ctx, m))

	got, err := db.MappingsForSource(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].ExternalModifiedAt)
	assert.True(t, got[0].ExternalModifiedAt.Equal(t2))

	id, ok, err := db.LookupInternalID(ctx, "s", "e1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "task-1", id)

	_, ok, err = db.LookupInternalID(ctx, "other", "e1")
	require.NoError(t, err)
	assert.False(t, ok, "mappings are scoped per source account")

	ids, err := db.AssignmentsForSource(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"task-1"}, ids)
}

func TestRecordMapping_NilTimestamp(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	createSource(t, db, "s")

	require.NoError(t, db.RecordMapping(ctx, schema.SyncMapping{SourceAccountID: "s", ExternalID: "e", InternalTaskID: "t"}))
	got, err := db.MappingsForSource(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].ExternalModifiedAt)

	err = db.RecordMapping(ctx, schema.SyncMapping{SourceAccountID: "s", ExternalID: "e"})
	assert.ErrorContains(t, err, "invalid mapping")
}

func TestTasks_CreateUpdate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	due := fixedNow.Add(48 * time.Hour)
	id, err := db.CreateTask(ctx, "alice", "Essay", "", due)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = db.UpdateTask(ctx, id, schema.TaskUpdate{Importance: ptrInt(5)})
	require.NoError(t, err)

	newDue := due.Add(24 * time.Hour)
	task, err := db.UpdateTask(ctx, id, schema.TaskUpdate{Name: ptrStr("Essay v2"), DueAt: &newDue})
	require.NoError(t, err)
	assert.Equal(t, "Essay v2", task.Name)
	assert.True(t, task.DueAt.Equal(newDue))
	require.NotNil(t, task.Importance, "nil update fields must not clear stored values")
	assert.Equal(t, 5, *task.Importance)
	assert.Nil(t, task.Effort)

	_, err = db.UpdateTask(ctx, "missing", schema.TaskUpdate{Name: ptrStr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.CreateTask(ctx, "alice", "", "", due)
	assert.ErrorContains(t, err, "name is required")
}

func TestPrioritizedTasks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	later, err := db.CreateTask(ctx, "alice", "Later", "", fixedNow.Add(10*24*time.Hour))
	require.NoError(t, err)
	soon, err := db.CreateTask(ctx, "alice", "Soon", "", fixedNow.Add(12*time.Hour))
	require.NoError(t, err)
	done, err := db.CreateTask(ctx, "alice", "Done", "", fixedNow.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, db.CompleteTask(ctx, done))
	_, err = db.CreateTask(ctx, "bob", "Not mine", "", fixedNow)
	require.NoError(t, err)

	tasks, err := db.PrioritizedTasks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, soon, tasks[0].ID)
	assert.Equal(t, later, tasks[1].ID)
	assert.Greater(t, tasks[0].PriorityScore, tasks[1].PriorityScore)
}

func TestLists_AndItems(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	weekly := &schema.TodoList{Owner: "alice", Name: "Weekly", StartTime: weekStart,
		EndTime: weekStart.Add(7*24*time.Hour - time.Second), Recurrence: schema.RecurrenceWeekly,
		Category: schema.CategoryDefaultRecurring}
	require.NoError(t, db.CreateList(ctx, weekly))
	require.NotEmpty(t, weekly.ID)

	old := &schema.TodoList{Owner: "alice", Name: "Last month", StartTime: weekStart.AddDate(0, -1, 0),
		EndTime: weekStart.AddDate(0, 0, -20)}
	require.NoError(t, db.CreateList(ctx, old))

	bad := &schema.TodoList{Owner: "alice", Name: "Backwards", StartTime: weekStart, EndTime: weekStart.Add(-time.Hour)}
	assert.ErrorContains(t, db.CreateList(ctx, bad), "invalid list")

	lists, err := db.ListsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "Last month", lists[0].Name)
	assert.Equal(t, schema.CategoryDefaultRecurring, lists[1].Category)

	active, err := db.ActiveLists(ctx, "alice", fixedNow)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, weekly.ID, active[0].ID)

	active, err = db.ActiveLists(ctx, "alice", weekStart)
	require.NoError(t, err)
	assert.Len(t, active, 1, "window start is inclusive")

	due := fixedNow.Add(time.Hour)
	require.NoError(t, db.AddItem(ctx, weekly.ID, "task-1", due))
	require.NoError(t, db.AddItem(ctx, weekly.ID, "task-1", due.Add(time.Hour)))

	items, err := db.ItemsForList(ctx, weekly.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].DueAt)
	assert.True(t, items[0].DueAt.Equal(due.Add(time.Hour)))

	err = db.AddItem(ctx, "no-such-list", "task-1", due)
	assert.Error(t, err, "foreign key must reject unknown lists")
}

func TestRecordMapping_RequiresSourceAccount(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.RecordMapping(ctx, schema.SyncMapping{SourceAccountID: "gone", ExternalID: "e", InternalTaskID: "t"})
	assert.Error(t, err, "a mapping cannot point at a missing account")

	rows, err := db.MappingsForSource(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSourceDelete_CascadesToMappings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	createSource(t, db, "s")
	require.NoError(t, db.RecordMapping(ctx, schema.SyncMapping{SourceAccountID: "s", ExternalID: "e", InternalTaskID: "t"}))

	_, err := db.conn.ExecContext(ctx, `DELETE FROM source_accounts WHERE id = ?`, "s")
	require.NoError(t, err)

	rows, err := db.MappingsForSource(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpen_ForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Hold several connections at once so the pool has to open new ones.
	for i := 0; i < 4; i++ {
		conn, err := db.conn.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		var on int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on))
		assert.Equal(t, 1, on, "connection %d", i)
	}
}

func TestTasks_CompleteAndSnooze(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.CreateTask(ctx, "alice", "Essay", "", fixedNow.Add(time.Hour))
	require.NoError(t, err)

	until := fixedNow.Add(72 * time.Hour)
	task, err := db.SnoozeTask(ctx, id, until)
	require.NoError(t, err)
	assert.True(t, task.DueAt.Equal(until))
	assert.Equal(t, "Essay", task.Name)

	require.NoError(t, db.CompleteTask(ctx, id))
	task, err = db.GetTask(ctx, id)
	require.NoError(t, err)
	assert.True(t, task.Completed)

	assert.ErrorIs(t, db.CompleteTask(ctx, "missing"), ErrNotFound)
	_, err = db.SnoozeTask(ctx, "missing", until)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFormatTime_SortsLexically(t *testing.T) {
	a := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := a.Add(500 * time.Millisecond)
	assert.Less(t, formatTime(a), formatTime(b))

	parsed := nullStringToTime(timeToNullString(ptrTime(b)))
	require.NotNil(t, parsed)
	assert.True(t, parsed.Equal(b))
}
