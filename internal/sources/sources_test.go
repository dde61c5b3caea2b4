package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

type stubAdapter struct {
	typ  schema.SourceType
	raws []schema.RawAssignment
	keys []string
}

func (s stubAdapter) Type() schema.SourceType { return s.typ }

func (s stubAdapter) Poll(context.Context, schema.SourceAccount) ([]schema.RawAssignment, error) {
	return s.raws, nil
}

func (s stubAdapter) ValidateDetails(details map[string]string) error {
	return RequireDetails(details, s.keys...)
}

func TestRegistry_Dispatch(t *testing.T) {
	cal := stubAdapter{typ: schema.SourceTypeCalendar, raws: []schema.RawAssignment{{ExternalID: "ev1", Name: "Exam"}}}
	lms := stubAdapter{typ: schema.SourceTypeLMS, raws: []schema.RawAssignment{{ExternalID: "42", Name: "Essay"}}}
	r := NewRegistry(cal, lms)

	got, err := r.Poll(context.Background(), schema.SourceAccount{Type: schema.SourceTypeLMS})
	require.NoError(t, err)
	assert.Equal(t, "42", got[0].ExternalID)

	_, err = r.Poll(context.Background(), schema.SourceAccount{Type: "fax"})
	assert.True(t, errors.Is(err, ErrUnknownType))

	assert.Equal(t, []schema.SourceType{schema.SourceTypeCalendar, schema.SourceTypeLMS}, r.Types())
}

func TestRegistry_ValidateDetails(t *testing.T) {
	r := NewRegistry(stubAdapter{typ: schema.SourceTypeFile, keys: []string{"dir"}})

	assert.NoError(t, r.ValidateDetails(schema.SourceTypeFile, map[string]string{"dir": "/x"}))

	err := r.ValidateDetails(schema.SourceTypeFile, map[string]string{"dir": "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file details")
	assert.Contains(t, err.Error(), "dir")

	assert.ErrorIs(t, r.ValidateDetails("fax", nil), ErrUnknownType)
}

func TestRequireDetails(t *testing.T) {
	err := RequireDetails(map[string]string{"a": "1"}, "a", "b", "c")
	assert.EqualError(t, err, "missing required details: b, c")
	assert.NoError(t, RequireDetails(nil))
}
