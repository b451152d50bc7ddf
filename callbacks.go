package tensorchat

import "encoding/json"

// StartEvent is passed to OnStart once the session's tensor table exists.
type StartEvent struct {
	Model         string
	TotalTensors  int
	SearchApplied bool
}

// ProgressEvent is passed to OnProgress when the server begins a tensor.
type ProgressEvent struct {
	Index int
}

// SearchProgressEvent is passed to OnSearchProgress when retrieval starts.
type SearchProgressEvent struct {
	Index int
}

// SearchCompleteEvent is passed to OnSearchComplete when retrieval ends.
type SearchCompleteEvent struct {
	Index int
}

// ChunkEvent is passed to OnTensorChunk. With throttling enabled Chunk may
// hold several coalesced frames.
type ChunkEvent struct {
	Index int
	Chunk string
}

// TensorCompleteEvent is passed to OnTensorComplete. Content is the full
// accumulated buffer of the tensor.
type TensorCompleteEvent struct {
	Index   int
	Result  json.RawMessage
	Content string
}

// CompleteEvent is passed to OnComplete after every tensor resolved.
type CompleteEvent struct{}

// ErrorEvent is passed to OnError. Index is nil for session-wide errors.
type ErrorEvent struct {
	Err   error
	Index *int
}

// Callbacks is the caller's bundle of lifecycle handlers. Every field is
// optional; a nil handler is a no-op.
//
// Handlers run synchronously on the goroutine consuming the stream, in the
// order frames were processed, and must not block indefinitely. A handler
// that returns an error or panics does not stop processing: the failure
// is wrapped in a *CallbackError, routed to OnError with the frame's index
// and returned from Submit once the stream ends. OnError itself cannot
// fail the stream; if it panics the panic is recorded and dropped.
type Callbacks struct {
	OnStart          func(StartEvent) error
	OnProgress       func(ProgressEvent) error
	OnSearchProgress func(SearchProgressEvent) error
	OnSearchComplete func(SearchCompleteEvent) error
	OnTensorChunk    func(ChunkEvent) error
	OnTensorComplete func(TensorCompleteEvent) error
	OnComplete       func(CompleteEvent) error
	OnError          func(ErrorEvent)
}
