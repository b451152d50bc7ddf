package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/tensorchat"
)

// errStreamClosed is returned by Next after Close.
var errStreamClosed = errors.New("sse: stream closed")

// stream implements [tensorchat.FrameStream] by parsing SSE events from an
// HTTP response body.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool // session_complete decoded
	closed  bool
}

// Interface compliance check.
var _ tensorchat.FrameStream = (*stream)(nil)

func newStream(body io.ReadCloser) *stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &stream{body: body, scanner: scanner}
}

// Next reads the next frame. Returns io.EOF after session_complete or when
// the body ends; the caller decides whether the end was premature.
func (s *stream) Next() (tensorchat.Frame, error) {
	if s.closed {
		return nil, errStreamClosed
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		eventType, data, err := s.readSSEEvent()
		if err != nil {
			return nil, err
		}
		f, err := decodeFrame(eventType, data)
		if err != nil {
			return nil, err
		}
		if f == nil {
			// ping or unknown type - keep reading.
			continue
		}
		if f.Type() == tensorchat.FrameTypeSessionComplete {
			s.done = true
		}
		return f, nil
	}
}

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// readSSEEvent reads lines until a complete SSE event is assembled.
// Returns the event type and the data payload.
func (s *stream) readSSEEvent() (string, string, error) {
	var eventType string
	var dataBuf strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			// Empty line signals end of event.
			if dataBuf.Len() > 0 {
				return eventType, dataBuf.String(), nil
			}
			eventType = ""
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(value)
		}
		// Comments (empty field) and id/retry are ignored.
	}

	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", "", &tensorchat.ProtocolError{Frame: tensorchat.FrameType(eventType), Index: -1, Reason: "frame exceeds 1MiB"}
		}
		return "", "", &tensorchat.TransportError{Op: "read", Err: fmt.Errorf("sse: %w", err)}
	}

	// Scanner exhausted without error = EOF.
	if dataBuf.Len() > 0 {
		return eventType, dataBuf.String(), nil
	}
	return "", "", io.EOF
}

// decodeFrame maps one SSE event to a frame. It returns a nil frame for
// events that carry no protocol meaning.
func decodeFrame(eventType, data string) (tensorchat.Frame, error) {
	var raw apiFrame
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, &tensorchat.ProtocolError{
			Frame:  tensorchat.FrameType(eventType),
			Index:  -1,
			Reason: fmt.Sprintf("malformed frame: %v", err),
		}
	}
	typ := raw.Type
	if typ == "" {
		typ = eventType
	}
	ft := tensorchat.FrameType(typ)

	index := func() (int, error) {
		if raw.Index == nil {
			return 0, &tensorchat.ProtocolError{Frame: ft, Index: -1, Reason: "missing index"}
		}
		return *raw.Index, nil
	}

	switch ft {
	case tensorchat.FrameTypeStart:
		if raw.TotalTensors == nil {
			return nil, &tensorchat.ProtocolError{Frame: ft, Index: -1, Reason: "missing total_tensors"}
		}
		return tensorchat.FrameStart{
			Model:         raw.Model,
			TotalTensors:  *raw.TotalTensors,
			SearchApplied: raw.SearchApplied,
		}, nil
	case tensorchat.FrameTypeTensorProgress:
		i, err := index()
		if err != nil {
			return nil, err
		}
		return tensorchat.FrameTensorProgress{Index: i}, nil
	case tensorchat.FrameTypeSearchProgress:
		i, err := index()
		if err != nil {
			return nil, err
		}
		return tensorchat.FrameSearchProgress{Index: i}, nil
	case tensorchat.FrameTypeSearchComplete:
		i, err := index()
		if err != nil {
			return nil, err
		}
		return tensorchat.FrameSearchComplete{Index: i}, nil
	case tensorchat.FrameTypeTensorChunk:
		i, err := index()
		if err != nil {
			return nil, err
		}
		return tensorchat.FrameTensorChunk{Index: i, Chunk: raw.Chunk}, nil
	case tensorchat.FrameTypeTensorComplete:
		i, err := index()
		if err != nil {
			return nil, err
		}
		return tensorchat.FrameTensorComplete{Index: i, Result: raw.Result}, nil
	case tensorchat.FrameTypeSessionComplete:
		return tensorchat.FrameSessionComplete{}, nil
	case tensorchat.FrameTypeError:
		msg := raw.Error
		if msg == "" {
			msg = raw.Message
		}
		if msg == "" {
			msg = "unknown error"
		}
		return tensorchat.FrameError{Index: raw.Index, Message: msg}, nil
	default:
		return nil, nil
	}
}
