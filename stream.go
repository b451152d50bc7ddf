package tensorchat

import "context"

// FrameStream uses a pull-based iterator pattern over the frames of one
// stream attempt. Next returns io.EOF when the server closes the stream.
// Cancellation flows through the context passed to Transport.Open.
//
// A FrameStream serves exactly one attempt. Close must be safe to call at
// any point, including after Next returned an error, and releases the
// underlying connection.
type FrameStream interface {
	Next() (Frame, error)
	Close() error
}

// Transport opens stream attempts against a backend. Implementations are
// reusable across requests; each Open returns a fresh FrameStream.
//
// Open should return a *TransportError for failures worth retrying
// (connection refused, timeouts, overloaded server) and any other error
// for failures that are not.
type Transport interface {
	Open(ctx context.Context, req StreamRequest) (FrameStream, error)
}
