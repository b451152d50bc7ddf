package tensorchat

import (
	"encoding/json"
	"strings"
	"time"
)

// TensorStatus is the lifecycle position of one tensor. Transitions only
// move forward: Pending → (Searching) → Streaming → Completed | Failed.
type TensorStatus int

const (
	TensorPending TensorStatus = iota
	TensorSearching
	TensorStreaming
	TensorCompleted
	TensorFailed
)

var tensorStatusNames = [...]string{"pending", "searching", "streaming", "completed", "failed"}

func (s TensorStatus) String() string {
	if s < 0 || int(s) >= len(tensorStatusNames) {
		return "unknown"
	}
	return tensorStatusNames[s]
}

// Terminal reports whether no further transition is possible.
func (s TensorStatus) Terminal() bool {
	return s == TensorCompleted || s == TensorFailed
}

// TensorState is a value snapshot of one tensor.
type TensorState struct {
	Index       int
	Status      TensorStatus
	Content     string          // all chunks concatenated in arrival order
	Chunks      int             // number of chunks received
	Result      json.RawMessage // set on completion
	Err         error           // *TensorError when Status is TensorFailed
	StartedAt   time.Time       // first frame addressed to this tensor
	CompletedAt time.Time       // zero until terminal
}

// Aggregator owns the state of exactly one tensor and mutates it in
// response to frames addressed to its index. It never invokes callbacks.
// Every rejected operation returns a *ProtocolError and leaves the state
// untouched.
type Aggregator struct {
	index         int
	searchEnabled bool
	searchDone    bool
	now           func() time.Time

	status      TensorStatus
	buf         strings.Builder
	chunks      int
	result      json.RawMessage
	err         error
	startedAt   time.Time
	completedAt time.Time
}

// NewAggregator creates a Pending aggregator for tensor index. Search
// transitions are accepted only when searchEnabled is set. A nil now uses
// time.Now.
func NewAggregator(index int, searchEnabled bool, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{index: index, searchEnabled: searchEnabled, now: now}
}

// Status returns the current status.
func (a *Aggregator) Status() TensorStatus { return a.status }

// Content returns the accumulated text.
func (a *Aggregator) Content() string { return a.buf.String() }

// State returns a snapshot of the tensor.
func (a *Aggregator) State() TensorState {
	return TensorState{
		Index:       a.index,
		Status:      a.status,
		Content:     a.buf.String(),
		Chunks:      a.chunks,
		Result:      a.result,
		Err:         a.err,
		StartedAt:   a.startedAt,
		CompletedAt: a.completedAt,
	}
}

// Begin records that the server started work on the tensor.
func (a *Aggregator) Begin() error {
	if a.status.Terminal() {
		return a.reject(FrameTypeTensorProgress, "tensor already %s", a.status)
	}
	a.touch()
	return nil
}

// MarkSearching moves a Pending tensor with search enabled to Searching.
func (a *Aggregator) MarkSearching() error {
	if !a.searchEnabled {
		return a.reject(FrameTypeSearchProgress, "search not enabled for tensor")
	}
	if a.status != TensorPending {
		return a.reject(FrameTypeSearchProgress, "search cannot start while %s", a.status)
	}
	a.touch()
	a.status = TensorSearching
	return nil
}

// MarkSearchComplete records the end of retrieval. The tensor stays
// Searching until its first chunk arrives.
func (a *Aggregator) MarkSearchComplete() error {
	if a.status != TensorSearching || a.searchDone {
		return a.reject(FrameTypeSearchComplete, "no search in progress (tensor %s)", a.status)
	}
	a.searchDone = true
	return nil
}

// ApplyChunk appends text to the buffer and moves the tensor to Streaming.
func (a *Aggregator) ApplyChunk(text string) error {
	if a.status.Terminal() {
		return a.reject(FrameTypeTensorChunk, "chunk after tensor %s", a.status)
	}
	a.touch()
	a.buf.WriteString(text)
	a.chunks++
	a.status = TensorStreaming
	return nil
}

// Complete resolves the tensor successfully and attaches result.
func (a *Aggregator) Complete(result json.RawMessage) error {
	if a.status.Terminal() {
		return a.reject(FrameTypeTensorComplete, "tensor already %s", a.status)
	}
	a.touch()
	a.status = TensorCompleted
	a.result = result
	a.completedAt = a.now()
	return nil
}

// Fail resolves the tensor as failed with the server's message.
func (a *Aggregator) Fail(message string) error {
	if a.status.Terminal() {
		return a.reject(FrameTypeError, "tensor already %s", a.status)
	}
	a.touch()
	a.status = TensorFailed
	a.err = &TensorError{Index: a.index, Message: message}
	a.completedAt = a.now()
	return nil
}

func (a *Aggregator) touch() {
	if a.startedAt.IsZero() {
		a.startedAt = a.now()
	}
}

func (a *Aggregator) reject(frame FrameType, format string, args ...any) error {
	return protocolErrorf(frame, a.index, format, args...)
}
