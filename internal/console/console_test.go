package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Title("Embedding coverage")
	p.Pairs(KV{Key: "Receipts", Value: "10"}, KV{Key: "Embedded", Value: "7"})
	p.Success("done")
	p.Warn("careful")
	p.Fail("broken %d", 2)

	out := buf.String()
	assert.Contains(t, out, "Embedding coverage")
	assert.Contains(t, out, "Receipts: ")
	assert.Contains(t, out, "Embedded: ")
	assert.Contains(t, out, "✓ done")
	assert.Contains(t, out, "! careful")
	assert.Contains(t, out, "✗ broken 2")
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Table([]string{"Priority", "Missing"}, [][]string{
		{"high", "12"},
		{"medium"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Priority")
	assert.Contains(t, lines[1], "─┼─")
	assert.Contains(t, lines[2], "high")
	assert.Contains(t, lines[2], "12")
	assert.True(t, strings.HasPrefix(lines[3], "medium"))
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░]", Bar(50, 10))
	assert.Equal(t, "[░░░░░░░░░░]", Bar(-5, 10))
	assert.Equal(t, "[██████████]", Bar(250, 10))
	assert.Len(t, []rune(Bar(10, 0)), 22)
	assert.Equal(t, "66.7%", Percent(200.0/3))
}
