package tensorchat

import "encoding/json"

// FrameType names a protocol frame kind as it appears on the wire.
type FrameType string

const (
	FrameTypeStart           FrameType = "start"
	FrameTypeTensorProgress  FrameType = "tensor_progress"
	FrameTypeSearchProgress  FrameType = "search_progress"
	FrameTypeSearchComplete  FrameType = "search_complete"
	FrameTypeTensorChunk     FrameType = "tensor_chunk"
	FrameTypeTensorComplete  FrameType = "tensor_complete"
	FrameTypeSessionComplete FrameType = "session_complete"
	FrameTypeError           FrameType = "error"
)

// Frame is a sealed interface representing one decoded protocol frame.
// Transport failures come from FrameStream.Next's error return, not from
// frames; an error frame is something the server chose to send.
// The unexported marker method prevents external implementations.
type Frame interface {
	Type() FrameType
	frame()
}

// FrameStart opens the session and announces the tensor count.
type FrameStart struct {
	Model         string
	TotalTensors  int
	SearchApplied bool
}

// FrameTensorProgress signals that the server began work on a tensor.
type FrameTensorProgress struct {
	Index int
}

// FrameSearchProgress signals that retrieval started for a tensor.
type FrameSearchProgress struct {
	Index int
}

// FrameSearchComplete signals that retrieval finished for a tensor.
type FrameSearchComplete struct {
	Index int
}

// FrameTensorChunk carries one text fragment for a tensor.
type FrameTensorChunk struct {
	Index int
	Chunk string
}

// FrameTensorComplete resolves a tensor successfully. Result is opaque
// service metadata and may be nil.
type FrameTensorComplete struct {
	Index  int
	Result json.RawMessage
}

// FrameSessionComplete closes the session. Valid only once every tensor
// is resolved.
type FrameSessionComplete struct{}

// FrameError reports a server-side failure. A nil Index fails the whole
// session; otherwise only the named tensor fails.
type FrameError struct {
	Index   *int
	Message string
}

func (FrameStart) Type() FrameType           { return FrameTypeStart }
func (FrameTensorProgress) Type() FrameType  { return FrameTypeTensorProgress }
func (FrameSearchProgress) Type() FrameType  { return FrameTypeSearchProgress }
func (FrameSearchComplete) Type() FrameType  { return FrameTypeSearchComplete }
func (FrameTensorChunk) Type() FrameType     { return FrameTypeTensorChunk }
func (FrameTensorComplete) Type() FrameType  { return FrameTypeTensorComplete }
func (FrameSessionComplete) Type() FrameType { return FrameTypeSessionComplete }
func (FrameError) Type() FrameType           { return FrameTypeError }

func (FrameStart) frame()           {}
func (FrameTensorProgress) frame()  {}
func (FrameSearchProgress) frame()  {}
func (FrameSearchComplete) frame()  {}
func (FrameTensorChunk) frame()     {}
func (FrameTensorComplete) frame()  {}
func (FrameSessionComplete) frame() {}
func (FrameError) frame()           {}

// Interface compliance checks.
var (
	_ Frame = FrameStart{}
	_ Frame = FrameTensorProgress{}
	_ Frame = FrameSearchProgress{}
	_ Frame = FrameSearchComplete{}
	_ Frame = FrameTensorChunk{}
	_ Frame = FrameTensorComplete{}
	_ Frame = FrameSessionComplete{}
	_ Frame = FrameError{}
)

// frameIndex returns the tensor index a frame addresses, or -1.
func frameIndex(f Frame) int {
	switch fr := f.(type) {
	case FrameTensorProgress:
		return fr.Index
	case FrameSearchProgress:
		return fr.Index
	case FrameSearchComplete:
		return fr.Index
	case FrameTensorChunk:
		return fr.Index
	case FrameTensorComplete:
		return fr.Index
	case FrameError:
		if fr.Index != nil {
			return *fr.Index
		}
	}
	return noIndex
}

// Ptr returns a pointer to v. Handy for scoped FrameError indices.
func Ptr[T any](v T) *T { return &v }
