// Package prometheus exports tensorchat session metrics to Prometheus.
//
// A [Metrics] value is shared across submissions. Wrap each submission's
// callbacks with [Metrics.Instrument] and plug [Metrics.OnRetry] into the
// client's retry policy.
package prometheus

import (
	"errors"
	"time"

	"github.com/fwojciec/tensorchat"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tensorchat"

// Tensor outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// durationBuckets covers sessions from sub-second to several minutes.
var durationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Metrics holds the registered collectors.
type Metrics struct {
	events     *prom.CounterVec
	chunkBytes prom.Counter
	tensors    *prom.CounterVec
	errors     *prom.CounterVec
	retries    prom.Counter
	duration   prom.Histogram

	now func() time.Time
}

// Option configures [Metrics].
type Option func(*Metrics)

// WithClock sets the time source used to measure session duration.
func WithClock(now func() time.Time) Option {
	return func(m *Metrics) { m.now = now }
}

// New registers the tensorchat collectors with reg. It panics if they are
// already registered, like promauto.
func New(reg prom.Registerer, opts ...Option) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		events: f.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Callback events dispatched, by frame type.",
		}, []string{"type"}),
		chunkBytes: f.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Bytes of tensor content delivered to chunk handlers.",
		}),
		tensors: f.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tensors_total",
			Help:      "Tensors resolved, by outcome.",
		}, []string{"outcome"}),
		errors: f.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors reported to error handlers, by kind.",
		}, []string{"kind"}),
		retries: f.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Stream attempts retried after a transport failure.",
		}),
		duration: f.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from session start to completion or failure.",
			Buckets:   durationBuckets,
		}),
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OnRetry counts a retry. Its signature matches tensorchat.RetryPolicy.OnRetry.
func (m *Metrics) OnRetry(int, error, time.Duration) {
	m.retries.Inc()
}

// Instrument returns a callback bundle that records metrics and then calls
// the matching handler in cb, if any. Handler errors pass through
// unchanged. The returned bundle tracks one session at a time, so use one
// per submission.
func (m *Metrics) Instrument(cb tensorchat.Callbacks) tensorchat.Callbacks {
	var started time.Time
	observe := func() {
		if started.IsZero() {
			return
		}
		m.duration.Observe(m.now().Sub(started).Seconds())
		started = time.Time{}
	}

	return tensorchat.Callbacks{
		OnStart: func(e tensorchat.StartEvent) error {
			m.count(tensorchat.FrameTypeStart)
			started = m.now()
			return forward(cb.OnStart, e)
		},
		OnProgress: func(e tensorchat.ProgressEvent) error {
			m.count(tensorchat.FrameTypeTensorProgress)
			return forward(cb.OnProgress, e)
		},
		OnSearchProgress: func(e tensorchat.SearchProgressEvent) error {
			m.count(tensorchat.FrameTypeSearchProgress)
			return forward(cb.OnSearchProgress, e)
		},
		OnSearchComplete: func(e tensorchat.SearchCompleteEvent) error {
			m.count(tensorchat.FrameTypeSearchComplete)
			return forward(cb.OnSearchComplete, e)
		},
		OnTensorChunk: func(e tensorchat.ChunkEvent) error {
			m.count(tensorchat.FrameTypeTensorChunk)
			m.chunkBytes.Add(float64(len(e.Chunk)))
			return forward(cb.OnTensorChunk, e)
		},
		OnTensorComplete: func(e tensorchat.TensorCompleteEvent) error {
			m.count(tensorchat.FrameTypeTensorComplete)
			m.tensors.WithLabelValues(OutcomeCompleted).Inc()
			return forward(cb.OnTensorComplete, e)
		},
		OnComplete: func(e tensorchat.CompleteEvent) error {
			m.count(tensorchat.FrameTypeSessionComplete)
			observe()
			return forward(cb.OnComplete, e)
		},
		OnError: func(e tensorchat.ErrorEvent) {
			m.count(tensorchat.FrameTypeError)
			kind := ErrorKind(e.Err)
			m.errors.WithLabelValues(kind).Inc()
			switch kind {
			case "tensor":
				m.tensors.WithLabelValues(OutcomeFailed).Inc()
			case "callback":
			default:
				if e.Index == nil {
					observe()
				}
			}
			if cb.OnError != nil {
				cb.OnError(e)
			}
		},
	}
}

func (m *Metrics) count(t tensorchat.FrameType) {
	m.events.WithLabelValues(string(t)).Inc()
}

func forward[E any](fn func(E) error, e E) error {
	if fn == nil {
		return nil
	}
	return fn(e)
}

// ErrorKind returns the errors_total label for err.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, tensorchat.ErrCallback):
		return "callback"
	case errors.Is(err, tensorchat.ErrRetryExhausted):
		return "retry_exhausted"
	case errors.Is(err, tensorchat.ErrTensor):
		return "tensor"
	case errors.Is(err, tensorchat.ErrProtocol):
		return "protocol"
	case errors.Is(err, tensorchat.ErrSession):
		return "session"
	case errors.Is(err, tensorchat.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
