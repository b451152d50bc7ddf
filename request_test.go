package tensorchat_test

import (
	"testing"

	"github.com/fwojciec/tensorchat"
	"github.com/stretchr/testify/assert"
)

func TestStreamRequest_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid request", func(t *testing.T) {
		t.Parallel()
		r := tensorchat.StreamRequest{
			Context: "You are a data analyst.",
			Model:   "google/gemini-2.5-flash-lite",
			Tensors: []tensorchat.TensorConfig{
				{Messages: "Summarize", Concise: true},
				{Messages: "Extract sentiment", Search: true},
			},
		}
		assert.NoError(t, r.Validate())
	})

	t.Run("missing model", func(t *testing.T) {
		t.Parallel()
		r := tensorchat.StreamRequest{Tensors: []tensorchat.TensorConfig{{Messages: "hi"}}}
		err := r.Validate()
		assert.ErrorIs(t, err, tensorchat.ErrValidation)
		assert.Contains(t, err.Error(), "model")
	})

	t.Run("no tensors", func(t *testing.T) {
		t.Parallel()
		r := tensorchat.StreamRequest{Model: "m"}
		err := r.Validate()
		assert.ErrorIs(t, err, tensorchat.ErrValidation)
		assert.Contains(t, err.Error(), "at least one tensor")
	})

	t.Run("empty messages", func(t *testing.T) {
		t.Parallel()
		r := tensorchat.StreamRequest{
			Model:   "m",
			Tensors: []tensorchat.TensorConfig{{Messages: "ok"}, {Messages: "  "}},
		}
		err := r.Validate()
		assert.ErrorIs(t, err, tensorchat.ErrValidation)
		assert.Contains(t, err.Error(), "tensor 1")
	})
}
