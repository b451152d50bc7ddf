package tensorchat

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle position of a whole session.
type SessionStatus int

const (
	SessionIdle       SessionStatus = iota // created, no frame applied yet
	SessionStarted                         // start frame applied
	SessionInProgress                      // at least one tensor frame applied
	SessionCompleted                       // session_complete applied
	SessionFailed                          // fatal error; partial state kept
)

var sessionStatusNames = [...]string{"idle", "started", "in_progress", "completed", "failed"}

func (s SessionStatus) String() string {
	if s < 0 || int(s) >= len(sessionStatusNames) {
		return "unknown"
	}
	return sessionStatusNames[s]
}

// Session is the client-side state of one stream attempt. The tensor table
// is allocated when the start frame is applied and never changes size
// afterwards. A Failed session keeps every buffer it accumulated.
//
// A Session is mutated only by the goroutine running Submit. Reading it
// from callbacks is safe; reading it from elsewhere is safe once Submit
// has returned.
type Session struct {
	id      string
	request StreamRequest
	now     func() time.Time

	status        SessionStatus
	model         string
	searchApplied bool
	tensors       []*Aggregator
	err           error
	callbackErrs  []error
	startedAt     time.Time
	completedAt   time.Time
}

func newSession(req StreamRequest, now func() time.Time) *Session {
	return &Session{
		id:      uuid.NewString(),
		request: req,
		now:     now,
	}
}

// ID returns the random identifier of this session.
func (s *Session) ID() string { return s.id }

// Request returns the submitted request.
func (s *Session) Request() StreamRequest { return s.request }

// Status returns the session status.
func (s *Session) Status() SessionStatus { return s.status }

// Model returns the model announced by the start frame.
func (s *Session) Model() string { return s.model }

// SearchApplied reports whether the server applied retrieval.
func (s *Session) SearchApplied() bool { return s.searchApplied }

// TotalTensors returns N once the session started, else 0.
func (s *Session) TotalTensors() int { return len(s.tensors) }

// Err returns the error that failed the session, if any.
func (s *Session) Err() error { return s.err }

// CallbackErrors returns the handler failures recorded during the attempt.
func (s *Session) CallbackErrors() []error { return s.callbackErrs }

// Tensor returns a snapshot of tensor i.
func (s *Session) Tensor(i int) (TensorState, bool) {
	if i < 0 || i >= len(s.tensors) {
		return TensorState{}, false
	}
	return s.tensors[i].State(), true
}

// Tensors returns snapshots of every tensor in index order.
func (s *Session) Tensors() []TensorState {
	states := make([]TensorState, len(s.tensors))
	for i, a := range s.tensors {
		states[i] = a.State()
	}
	return states
}

// Resolved reports whether the session started and every tensor reached
// Completed or Failed.
func (s *Session) Resolved() bool {
	if len(s.tensors) == 0 {
		return false
	}
	for _, a := range s.tensors {
		if !a.Status().Terminal() {
			return false
		}
	}
	return true
}

// StartedAt returns when the start frame was applied.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// CompletedAt returns when the session reached a terminal status.
func (s *Session) CompletedAt() time.Time { return s.completedAt }

// aggregator returns the aggregator for index, or nil.
func (s *Session) aggregator(index int) *Aggregator {
	if index < 0 || index >= len(s.tensors) {
		return nil
	}
	return s.tensors[index]
}

func (s *Session) start(f FrameStart) {
	s.model = f.Model
	s.searchApplied = f.SearchApplied
	s.tensors = make([]*Aggregator, f.TotalTensors)
	for i := range s.tensors {
		search := s.request.Tensors[i].Search || f.SearchApplied
		s.tensors[i] = NewAggregator(i, search, s.now)
	}
	s.status = SessionStarted
	s.startedAt = s.now()
}

func (s *Session) progress() {
	if s.status == SessionStarted {
		s.status = SessionInProgress
	}
}

func (s *Session) complete() {
	s.status = SessionCompleted
	s.completedAt = s.now()
}

func (s *Session) fail(err error) {
	if s.status == SessionFailed {
		return
	}
	s.status = SessionFailed
	s.err = err
	s.completedAt = s.now()
}

func (s *Session) recordCallbackError(err error) {
	s.callbackErrs = append(s.callbackErrs, err)
}
