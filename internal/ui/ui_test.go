package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_AlignsColumns(t *testing.T) {
	Init(&bytes.Buffer{})

	out := Table([]string{"ID", "NAME", "STATUS"}, [][]string{
		{"src-1", "Canvas", "connected"},
		{"s2", "Calendar", "error"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, []string{
		"ID     NAME      STATUS",
		"src-1  Canvas    connected",
		"s2     Calendar  error",
	}, lines)
}

func TestTable_ShortRows(t *testing.T) {
	Init(&bytes.Buffer{})

	out := Table([]string{"A", "B"}, [][]string{{"x"}})
	assert.Equal(t, "A  B\nx\n", out)
}

func TestRender_PlainWithoutTerminal(t *testing.T) {
	Init(&bytes.Buffer{})

	assert.Equal(t, "ok", RenderPass("ok"))
	assert.Equal(t, "no", RenderFail("no"))
}
