package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Events exports the events counter for testing.
func Events(m *Metrics) *prom.CounterVec { return m.events }

// ChunkBytes exports the chunk bytes counter for testing.
func ChunkBytes(m *Metrics) prom.Counter { return m.chunkBytes }

// Tensors exports the tensor outcome counter for testing.
func Tensors(m *Metrics) *prom.CounterVec { return m.tensors }

// Errors exports the error counter for testing.
func Errors(m *Metrics) *prom.CounterVec { return m.errors }

// Retries exports the retry counter for testing.
func Retries(m *Metrics) prom.Counter { return m.retries }

// DurationCount returns the number of session durations observed.
func DurationCount(m *Metrics) uint64 {
	var pb dto.Metric
	if err := m.duration.Write(&pb); err != nil {
		return 0
	}
	return pb.GetHistogram().GetSampleCount()
}
