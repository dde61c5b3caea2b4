package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func raw(id string, modified *time.Time) schema.RawAssignment {
	return schema.RawAssignment{ExternalID: id, Name: "Assignment " + id, ModifiedAt: modified}
}

func mapping(source, id, task string, modified *time.Time) schema.SyncMapping {
	return schema.SyncMapping{SourceAccountID: source, ExternalID: id, InternalTaskID: task, ExternalModifiedAt: modified}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      schema.RawAssignment
		mappings []schema.SyncMapping
		want     Kind
		wantTask string
	}{
		{
			name: "no mapping is new",
			raw:  raw("a", at(0)),
			want: New,
		},
		{
			name:     "newer timestamp is updated",
			raw:      raw("a", at(time.Hour)),
			mappings: []schema.SyncMapping{mapping("src", "a", "t1", at(0))},
			want:     Updated,
			wantTask: "t1",
		},
		{
			name:     "equal timestamp is unchanged",
			raw:      raw("a", at(0)),
			mappings: []schema.SyncMapping{mapping("src", "a", "t1", at(0))},
			want:     Unchanged,
			wantTask: "t1",
		},
		{
			name:     "older timestamp is unchanged",
			raw:      raw("a", at(-time.Hour)),
			mappings: []schema.SyncMapping{mapping("src", "a", "t1", at(0))},
			want:     Unchanged,
			wantTask: "t1",
		},
		{
			name:     "raw without timestamp is unchanged",
			raw:      raw("a", nil),
			mappings: []schema.SyncMapping{mapping("src", "a", "t1", at(0))},
			want:     Unchanged,
			wantTask: "t1",
		},
		{
			name:     "recorded without timestamp and raw with one is updated",
			raw:      raw("a", at(0)),
			mappings: []schema.SyncMapping{mapping("src", "a", "t1", nil)},
			want:     Updated,
			wantTask: "t1",
		},
		{
			name:     "both without timestamp is unchanged",
			raw:      raw("a", nil),
			mappings: []schema.SyncMapping{mapping("src", "a", "t1", nil)},
			want:     Unchanged,
			wantTask: "t1",
		},
		{
			name:     "mapping from another source is ignored",
			raw:      raw("a", at(0)),
			mappings: []schema.SyncMapping{mapping("other", "a", "t9", at(0))},
			want:     New,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("src", []schema.RawAssignment{tt.raw}, tt.mappings)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Kind, "kind = %s", got[0].Kind)
			assert.Equal(t, tt.wantTask, got[0].InternalTaskID)
			assert.Equal(t, tt.raw, got[0].Assignment)
		})
	}
}

func TestClassify_PreservesOrder(t *testing.T) {
	raws := []schema.RawAssignment{raw("c", at(0)), raw("a", at(time.Hour)), raw("b", at(0))}
	mappings := []schema.SyncMapping{mapping("src", "a", "t1", at(0)), mapping("src", "b", "t2", at(0))}

	got := Classify("src", raws, mappings)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Assignment.ExternalID)
	assert.Equal(t, New, got[0].Kind)
	assert.Equal(t, "a", got[1].Assignment.ExternalID)
	assert.Equal(t, Updated, got[1].Kind)
	assert.Equal(t, "b", got[2].Assignment.ExternalID)
	assert.Equal(t, Unchanged, got[2].Kind)

	counts := Count(got)
	assert.Equal(t, map[Kind]int{New: 1, Updated: 1, Unchanged: 1}, counts)
}

func TestClassify_EmptyInputs(t *testing.T) {
	assert.Empty(t, Classify("src", nil, nil))
	assert.Empty(t, Classify("src", nil, []schema.SyncMapping{mapping("src", "a", "t1", nil)}))
}

func TestClassify_DuplicateIDsNeverCreateTwice(t *testing.T) {
	raws := []schema.RawAssignment{
		raw("x", at(0)),
		raw("y", at(0)),
		raw("x", at(2*time.Hour)),
		raw("x", at(time.Hour)),
	}

	got := Classify("src", raws, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].Assignment.ExternalID)
	assert.Equal(t, New, got[0].Kind)
	assert.Equal(t, at(2*time.Hour), got[0].Assignment.ModifiedAt, "latest copy wins")
	assert.Equal(t, "y", got[1].Assignment.ExternalID)
}

func TestDedupe_TieKeepsFirst(t *testing.T) {
	first := raw("x", at(0))
	first.Name = "first"
	second := raw("x", at(0))
	second.Name = "second"

	got := Dedupe([]schema.RawAssignment{first, second})
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Name)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "new", New.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
