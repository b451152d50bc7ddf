package tensorchat

import (
	"fmt"
	"slices"
	"strings"
)

// StreamRequest is one logical request carrying N independent tensors.
// Tensor order defines index assignment: Tensors[i] is tensor i.
type StreamRequest struct {
	Context string // instruction prelude shared by every tensor
	Model   string // model ID, service-specific
	Tensors []TensorConfig
}

// TensorConfig describes one generation task.
type TensorConfig struct {
	Messages string // the task prompt
	Concise  bool   // hint for shorter responses
	Search   bool   // enable retrieval augmentation for this tensor only
}

// Validate checks universal constraints on StreamRequest.
func (r StreamRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("model is required: %w", ErrValidation)
	}
	if len(r.Tensors) == 0 {
		return fmt.Errorf("at least one tensor is required: %w", ErrValidation)
	}
	for i, t := range r.Tensors {
		if strings.TrimSpace(t.Messages) == "" {
			return fmt.Errorf("tensor %d: messages must not be empty: %w", i, ErrValidation)
		}
	}
	return nil
}

// clone returns a copy that shares no memory with r, so a caller mutating
// its slice after submission cannot affect the request in flight.
func (r StreamRequest) clone() StreamRequest {
	r.Tensors = slices.Clone(r.Tensors)
	return r
}
