package tensorchat

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
)

// errUnexpectedEOF is wrapped in a *TransportError when the stream ends
// before session_complete.
var errUnexpectedEOF = errors.New("unexpected end of stream")

// Demultiplexer routes frames, in arrival order, to the aggregator owning
// their tensor index and asks the router to dispatch the matching callback.
// It serves one attempt and is driven by a single goroutine, so session
// state needs no locking.
type Demultiplexer struct {
	session *Session
	router  *Router
	logger  *zap.Logger
	done    bool
}

func newDemultiplexer(session *Session, router *Router, logger *zap.Logger) *Demultiplexer {
	return &Demultiplexer{session: session, router: router, logger: logger}
}

// Run pulls frames until session_complete, a fatal error or cancellation.
// The caller owns the stream and closes it.
//
// On cancellation the session is marked Failed with the context error and
// every tensor keeps whatever state it held.
func (d *Demultiplexer) Run(ctx context.Context, stream FrameStream) error {
	for !d.done {
		if err := ctx.Err(); err != nil {
			d.session.fail(err)
			return err
		}
		f, err := stream.Next()
		if err != nil {
			return d.streamFailed(ctx, err)
		}
		if err := d.Apply(f); err != nil {
			return err
		}
	}
	return nil
}

// streamFailed classifies an error returned by FrameStream.Next.
func (d *Demultiplexer) streamFailed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		d.session.fail(ctxErr)
		return ctxErr
	}
	if errors.Is(err, io.EOF) {
		err = &TransportError{Op: "read", Err: errUnexpectedEOF}
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return d.fatal(err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		err = &TransportError{Op: "read", Err: err}
	}
	// Transport failures are reported by the retry loop, not per attempt.
	d.session.fail(err)
	return err
}

// Apply processes a single frame. It returns a non-nil error only when the
// frame ended the attempt: a *ProtocolError or a *SessionError. Scoped
// error frames fail their tensor and return nil.
func (d *Demultiplexer) Apply(f Frame) error {
	if d.done {
		return d.fatal(protocolErrorf(f.Type(), frameIndex(f), "frame after session_complete"))
	}
	if start, ok := f.(FrameStart); ok {
		return d.applyStart(start)
	}
	if d.session.Status() == SessionIdle {
		return d.fatal(protocolErrorf(f.Type(), frameIndex(f), "frame before start"))
	}

	switch fr := f.(type) {
	case FrameTensorProgress:
		a, err := d.lookup(fr)
		if err != nil {
			return err
		}
		if err := a.Begin(); err != nil {
			return d.fatal(err)
		}
		d.session.progress()
		d.router.progress(fr.Index)

	case FrameSearchProgress:
		a, err := d.lookup(fr)
		if err != nil {
			return err
		}
		if err := a.MarkSearching(); err != nil {
			return d.fatal(err)
		}
		d.session.progress()
		d.router.searchProgress(fr.Index)

	case FrameSearchComplete:
		a, err := d.lookup(fr)
		if err != nil {
			return err
		}
		if err := a.MarkSearchComplete(); err != nil {
			return d.fatal(err)
		}
		d.router.searchComplete(fr.Index)

	case FrameTensorChunk:
		a, err := d.lookup(fr)
		if err != nil {
			return err
		}
		if err := a.ApplyChunk(fr.Chunk); err != nil {
			return d.fatal(err)
		}
		d.session.progress()
		d.router.chunk(fr.Index, fr.Chunk)

	case FrameTensorComplete:
		a, err := d.lookup(fr)
		if err != nil {
			return err
		}
		if err := a.Complete(fr.Result); err != nil {
			return d.fatal(err)
		}
		d.session.progress()
		d.router.tensorComplete(fr.Index, fr.Result, a.Content())

	case FrameSessionComplete:
		if unresolved := d.unresolved(); len(unresolved) > 0 {
			return d.fatal(protocolErrorf(FrameTypeSessionComplete, noIndex,
				"tensors %v unresolved", unresolved))
		}
		d.done = true
		d.session.complete()
		d.router.complete()

	case FrameError:
		if fr.Index == nil {
			err := &SessionError{Message: fr.Message}
			d.logger.Warn("session failed by server",
				zap.String("session", d.session.ID()),
				zap.String("message", fr.Message),
			)
			d.session.fail(err)
			d.router.sessionError(err)
			return err
		}
		a, err := d.lookup(fr)
		if err != nil {
			return err
		}
		if err := a.Fail(fr.Message); err != nil {
			return d.fatal(err)
		}
		d.session.progress()
		d.router.tensorError(*fr.Index, a.State().Err)

	default:
		return d.fatal(protocolErrorf(f.Type(), noIndex, "unsupported frame %T", f))
	}
	return nil
}

func (d *Demultiplexer) applyStart(f FrameStart) error {
	if d.session.Status() != SessionIdle {
		return d.fatal(protocolErrorf(FrameTypeStart, noIndex, "duplicate start"))
	}
	want := len(d.session.Request().Tensors)
	if f.TotalTensors != want {
		return d.fatal(protocolErrorf(FrameTypeStart, noIndex,
			"total_tensors %d does not match %d submitted tensors", f.TotalTensors, want))
	}
	d.session.start(f)
	d.logger.Debug("session started",
		zap.String("session", d.session.ID()),
		zap.String("model", f.Model),
		zap.Int("tensors", f.TotalTensors),
		zap.Bool("search_applied", f.SearchApplied),
	)
	d.router.start(f)
	return nil
}

// lookup returns the aggregator addressed by f or fails the attempt.
func (d *Demultiplexer) lookup(f Frame) (*Aggregator, error) {
	index := frameIndex(f)
	a := d.session.aggregator(index)
	if a == nil {
		return nil, d.fatal(protocolErrorf(f.Type(), index,
			"unknown tensor index (session has %d)", d.session.TotalTensors()))
	}
	return a, nil
}

func (d *Demultiplexer) unresolved() []int {
	var idx []int
	for i, a := range d.session.tensors {
		if !a.Status().Terminal() {
			idx = append(idx, i)
		}
	}
	return idx
}

// fatal fails the session with err, reports it through OnError and
// returns it.
func (d *Demultiplexer) fatal(err error) error {
	d.logger.Warn("protocol violation",
		zap.String("session", d.session.ID()),
		zap.Error(err),
	)
	d.session.fail(err)
	d.router.sessionError(err)
	return err
}
