package tensorchat

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Router invokes the caller's handler for each processed frame and isolates
// the caller from handler failures. It is owned by a single attempt.
type Router struct {
	cb       Callbacks
	throttle time.Duration
	now      func() time.Time
	logger   *zap.Logger
	session  *Session

	// gates holds per-tensor throttling state; nil when throttling is off.
	gates []*chunkGate
}

// chunkGate coalesces chunks arriving faster than the throttle interval.
type chunkGate struct {
	limiter *rate.Limiter
	pending strings.Builder
}

func newRouter(cb Callbacks, throttle time.Duration, now func() time.Time, logger *zap.Logger, session *Session) *Router {
	return &Router{
		cb:       cb,
		throttle: throttle,
		now:      now,
		logger:   logger,
		session:  session,
	}
}

func (r *Router) start(f FrameStart) {
	if r.throttle > 0 && r.cb.OnTensorChunk != nil {
		r.gates = make([]*chunkGate, f.TotalTensors)
		for i := range r.gates {
			r.gates[i] = &chunkGate{limiter: rate.NewLimiter(rate.Every(r.throttle), 1)}
		}
	}
	if r.cb.OnStart == nil {
		return
	}
	ev := StartEvent{Model: f.Model, TotalTensors: f.TotalTensors, SearchApplied: f.SearchApplied}
	r.invoke(FrameTypeStart, noIndex, func() error { return r.cb.OnStart(ev) })
}

func (r *Router) progress(index int) {
	if r.cb.OnProgress == nil {
		return
	}
	r.invoke(FrameTypeTensorProgress, index, func() error {
		return r.cb.OnProgress(ProgressEvent{Index: index})
	})
}

func (r *Router) searchProgress(index int) {
	if r.cb.OnSearchProgress == nil {
		return
	}
	r.invoke(FrameTypeSearchProgress, index, func() error {
		return r.cb.OnSearchProgress(SearchProgressEvent{Index: index})
	})
}

func (r *Router) searchComplete(index int) {
	if r.cb.OnSearchComplete == nil {
		return
	}
	r.invoke(FrameTypeSearchComplete, index, func() error {
		return r.cb.OnSearchComplete(SearchCompleteEvent{Index: index})
	})
}

func (r *Router) chunk(index int, text string) {
	if r.cb.OnTensorChunk == nil {
		return
	}
	if r.gates == nil {
		r.sendChunk(index, text)
		return
	}
	g := r.gates[index]
	g.pending.WriteString(text)
	if g.limiter.AllowN(r.now(), 1) {
		r.flush(index)
	}
}

func (r *Router) tensorComplete(index int, result []byte, content string) {
	r.flush(index)
	if r.cb.OnTensorComplete == nil {
		return
	}
	ev := TensorCompleteEvent{Index: index, Result: result, Content: content}
	r.invoke(FrameTypeTensorComplete, index, func() error { return r.cb.OnTensorComplete(ev) })
}

func (r *Router) complete() {
	r.flushAll()
	if r.cb.OnComplete == nil {
		return
	}
	r.invoke(FrameTypeSessionComplete, noIndex, func() error { return r.cb.OnComplete(CompleteEvent{}) })
}

// tensorError reports a scoped failure after draining the tensor's
// coalesced chunks.
func (r *Router) tensorError(index int, err error) {
	r.flush(index)
	r.emitError(err, index)
}

// sessionError reports a session-fatal failure after draining every
// tensor's coalesced chunks.
func (r *Router) sessionError(err error) {
	r.flushAll()
	r.emitError(err, noIndex)
}

// flush delivers any coalesced text for index regardless of the limiter.
func (r *Router) flush(index int) {
	if index < 0 || index >= len(r.gates) {
		return
	}
	g := r.gates[index]
	if g.pending.Len() == 0 {
		return
	}
	text := g.pending.String()
	g.pending.Reset()
	r.sendChunk(index, text)
}

func (r *Router) flushAll() {
	for i := range r.gates {
		r.flush(i)
	}
}

func (r *Router) sendChunk(index int, text string) {
	r.invoke(FrameTypeTensorChunk, index, func() error {
		return r.cb.OnTensorChunk(ChunkEvent{Index: index, Chunk: text})
	})
}

// invoke runs fn and converts an error or panic into a *CallbackError that
// is recorded on the session and routed to OnError.
func (r *Router) invoke(frame FrameType, index int, fn func() error) {
	recovered, err := call(fn)
	if err == nil && recovered == nil {
		return
	}
	cbErr := &CallbackError{Frame: frame, Index: index, Err: err, Panic: recovered}
	r.session.recordCallbackError(cbErr)
	r.logger.Warn("callback failed",
		zap.String("session", r.session.ID()),
		zap.String("frame", string(frame)),
		zap.Int("index", index),
		zap.Error(cbErr),
	)
	r.emitError(cbErr, index)
}

func (r *Router) emitError(err error, index int) {
	if r.cb.OnError == nil {
		return
	}
	ev := ErrorEvent{Err: err}
	if index != noIndex {
		ev.Index = Ptr(index)
	}
	recovered, _ := call(func() error {
		r.cb.OnError(ev)
		return nil
	})
	if recovered != nil {
		cbErr := &CallbackError{Frame: FrameTypeError, Index: index, Panic: recovered}
		r.session.recordCallbackError(cbErr)
		r.logger.Warn("error handler panicked",
			zap.String("session", r.session.ID()),
			zap.Any("panic", recovered),
		)
	}
}

func call(fn func() error) (recovered any, err error) {
	defer func() {
		if p := recover(); p != nil {
			recovered = p
		}
	}()
	return nil, fn()
}
