package goldmark_test

import (
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/tensorchat"
	"github.com/fwojciec/tensorchat/goldmark"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	result := tensorchat.SessionResult{
		ID:            "s1",
		Model:         "tensor-1",
		Status:        tensorchat.SessionCompleted,
		SearchApplied: true,
		StartedAt:     started,
		CompletedAt:   started.Add(1500 * time.Millisecond),
		Tensors: []tensorchat.TensorResult{
			{Index: 0, Status: tensorchat.TensorCompleted, Content: "**Go** is fun"},
			{Index: 1, Status: tensorchat.TensorFailed, Content: "half", Err: "tensor 1: filtered"},
			{Index: 2, Status: tensorchat.TensorCompleted},
		},
	}

	out := stripANSI(goldmark.Render(result, 60, tensorchat.DefaultTheme()))

	assert.True(t, strings.HasPrefix(out, "tensor-1 2/3 completed · completed · search · 1.5s"), out)
	assert.Contains(t, out, "Tensor 0 · completed · 13 chars")
	assert.Contains(t, out, "Go is fun")
	assert.Contains(t, out, "Tensor 1 · failed · 4 chars")
	assert.Contains(t, out, "✗ tensor 1: filtered")
	assert.Contains(t, out, "Tensor 2 · completed · 0 chars")
	assert.Contains(t, out, "(no content)")
	assert.Less(t, strings.Index(out, "Tensor 0"), strings.Index(out, "Tensor 1"))
	assert.Less(t, strings.Index(out, "Tensor 1"), strings.Index(out, "Tensor 2"))
}

func TestRender_SessionError(t *testing.T) {
	t.Parallel()

	result := tensorchat.SessionResult{
		Status: tensorchat.SessionFailed,
		Err:    "session: overloaded",
		Tensors: []tensorchat.TensorResult{
			{Index: 0, Status: tensorchat.TensorStreaming, Content: "partial"},
		},
	}

	out := stripANSI(goldmark.Render(result, 0, tensorchat.DefaultTheme()))

	assert.Contains(t, out, "session 0/1 completed · failed")
	assert.Contains(t, out, "error: session: overloaded")
	assert.Contains(t, out, "Tensor 0 · streaming")
	assert.Contains(t, out, "partial")
}

func TestRender_HeaderFillsWidth(t *testing.T) {
	t.Parallel()

	result := tensorchat.SessionResult{
		Tensors: []tensorchat.TensorResult{{Index: 0, Status: tensorchat.TensorCompleted, Content: "x"}},
	}

	out := stripANSI(goldmark.Render(result, 50, tensorchat.DefaultTheme()))

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Tensor 0") {
			assert.Equal(t, 50, len([]rune(line)))
		}
	}
}

func TestLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, goldmark.Length(""))
	assert.Equal(t, 5, goldmark.Length("hello"))
	assert.Equal(t, 2, goldmark.Length("日本"))
	assert.Equal(t, 1, goldmark.Length("👍🏽"))
	assert.Equal(t, 1, goldmark.Length("é"))
}
