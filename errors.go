package tensorchat

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes. Every typed error below matches
// exactly one of them through errors.Is.
var (
	// ErrValidation indicates a request or config failed validation.
	ErrValidation = errors.New("validation error")

	// ErrTransport indicates a connection, timeout or transient server
	// failure. Only transport errors are retried.
	ErrTransport = errors.New("transport error")

	// ErrProtocol indicates a malformed or out-of-order frame.
	ErrProtocol = errors.New("protocol error")

	// ErrTensor indicates a single tensor failed server-side.
	ErrTensor = errors.New("tensor error")

	// ErrSession indicates an unscoped failure of the whole session.
	ErrSession = errors.New("session error")

	// ErrCallback indicates a caller-supplied handler failed.
	ErrCallback = errors.New("callback error")

	// ErrRetryExhausted indicates every allowed attempt failed.
	ErrRetryExhausted = errors.New("retry exhausted")

	// ErrClientClosed indicates Submit was called after Close.
	ErrClientClosed = errors.New("client closed")
)

// noIndex marks errors that are not scoped to a tensor.
const noIndex = -1

// TransportError reports a failed connection attempt or a broken stream.
type TransportError struct {
	Op         string // "open", "read", ...
	StatusCode int    // HTTP status when the server answered, else 0
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ProtocolError reports a frame that violates the stream protocol. Index is
// -1 when the violation is not tied to a tensor.
type ProtocolError struct {
	Frame  FrameType
	Index  int
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Index == noIndex {
		return fmt.Sprintf("protocol: %s: %s", e.Frame, e.Reason)
	}
	return fmt.Sprintf("protocol: %s for tensor %d: %s", e.Frame, e.Index, e.Reason)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func protocolErrorf(frame FrameType, index int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Frame: frame, Index: index, Reason: fmt.Sprintf(format, args...)}
}

// TensorError reports a server-side failure of one tensor.
type TensorError struct {
	Index   int
	Message string
}

func (e *TensorError) Error() string {
	return fmt.Sprintf("tensor %d: %s", e.Index, e.Message)
}

func (e *TensorError) Is(target error) bool { return target == ErrTensor }

// SessionError reports a failure that ends the whole session.
type SessionError struct {
	Message string
	Err     error // underlying cause, may be nil
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Message, e.Err)
	}
	return "session: " + e.Message
}

func (e *SessionError) Unwrap() error        { return e.Err }
func (e *SessionError) Is(target error) bool { return target == ErrSession }

// CallbackError reports a handler that returned an error or panicked.
// Index is -1 for handlers not tied to a tensor.
type CallbackError struct {
	Frame FrameType
	Index int
	Err   error
	Panic any // recovered value when the handler panicked
}

func (e *CallbackError) Error() string {
	cause := fmt.Sprint(e.Err)
	if e.Panic != nil {
		cause = fmt.Sprintf("panic: %v", e.Panic)
	}
	if e.Index == noIndex {
		return fmt.Sprintf("callback %s: %s", e.Frame, cause)
	}
	return fmt.Sprintf("callback %s for tensor %d: %s", e.Frame, e.Index, cause)
}

func (e *CallbackError) Unwrap() error        { return e.Err }
func (e *CallbackError) Is(target error) bool { return target == ErrCallback }

// RetryExhaustedError is returned when every attempt failed with a
// transport error. Err is the last failure.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error        { return e.Err }
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }
