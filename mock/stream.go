package mock

import (
	"io"

	"github.com/fwojciec/tensorchat"
)

// FrameStream is a test double for tensorchat.FrameStream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe
// because callers always close streams and rarely need custom behavior.
type FrameStream struct {
	NextFn  func() (tensorchat.Frame, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *FrameStream) Next() (tensorchat.Frame, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *FrameStream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Frames returns a FrameStream yielding frames in order, then io.EOF.
// Closed reports whether Close was called.
func Frames(frames ...tensorchat.Frame) (stream *FrameStream, closed func() bool) {
	var i int
	var isClosed bool
	stream = &FrameStream{
		NextFn: func() (tensorchat.Frame, error) {
			if i >= len(frames) {
				return nil, io.EOF
			}
			f := frames[i]
			i++
			return f, nil
		},
		CloseFn: func() error {
			isClosed = true
			return nil
		},
	}
	return stream, func() bool { return isClosed }
}
