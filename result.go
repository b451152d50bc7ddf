package tensorchat

import (
	"encoding/json"
	"time"
)

// SessionResult is a detached value copy of a finished session, returned
// by SubmitSingle and persisted by the json package.
type SessionResult struct {
	ID            string
	Model         string
	Status        SessionStatus
	SearchApplied bool
	Tensors       []TensorResult
	Err           string // message of the session-fatal error, if any
	StartedAt     time.Time
	CompletedAt   time.Time
}

// TensorResult is the outcome of one tensor.
type TensorResult struct {
	Index       int
	Status      TensorStatus
	Content     string
	Result      json.RawMessage
	Err         string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the wall time between start and completion, or zero
// when either is unknown.
func (r SessionResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Completed returns how many tensors completed successfully.
func (r SessionResult) Completed() int {
	var n int
	for _, t := range r.Tensors {
		if t.Status == TensorCompleted {
			n++
		}
	}
	return n
}

// Result returns a detached snapshot of the session.
func (s *Session) Result() SessionResult {
	r := SessionResult{
		ID:            s.id,
		Model:         s.model,
		Status:        s.status,
		SearchApplied: s.searchApplied,
		Tensors:       make([]TensorResult, len(s.tensors)),
		StartedAt:     s.startedAt,
		CompletedAt:   s.completedAt,
	}
	if s.err != nil {
		r.Err = s.err.Error()
	}
	for i, a := range s.tensors {
		st := a.State()
		tr := TensorResult{
			Index:       st.Index,
			Status:      st.Status,
			Content:     st.Content,
			Result:      st.Result,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
		}
		if st.Err != nil {
			tr.Err = st.Err.Error()
		}
		r.Tensors[i] = tr
	}
	return r
}
