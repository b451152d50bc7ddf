// Package bubbletea provides a Bubble Tea TUI that shows the live progress
// of every tensor in a tensorchat session.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/tensorchat"
)

// SubmitFunc runs one submission, driving cb. It blocks until the session
// ends or ctx is cancelled.
type SubmitFunc func(ctx context.Context, cb tensorchat.Callbacks) error

// Run creates and runs the Bubble Tea TUI program. It blocks until the
// program exits. The submission runs under ctx; when ctx is cancelled the
// submission is cancelled and the program quits. A submission still in
// flight when the program exits is cancelled.
func Run(ctx context.Context, m Model, opts ...tea.ProgramOption) (Model, error) {
	if m.parent == nil {
		m = m.WithContext(ctx)
	}
	p := tea.NewProgram(m, opts...)
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-exited:
		}
	}()
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		m = fm
	}
	if m.cancel != nil {
		m.cancel()
	}
	return m, err
}

// Callbacks returns a callback bundle that forwards every event to send
// as an [EventMsg]. Handlers never fail.
func Callbacks(send func(tea.Msg)) tensorchat.Callbacks {
	forward := func(e any) error {
		send(EventMsg{Event: e})
		return nil
	}
	return tensorchat.Callbacks{
		OnStart:          func(e tensorchat.StartEvent) error { return forward(e) },
		OnProgress:       func(e tensorchat.ProgressEvent) error { return forward(e) },
		OnSearchProgress: func(e tensorchat.SearchProgressEvent) error { return forward(e) },
		OnSearchComplete: func(e tensorchat.SearchCompleteEvent) error { return forward(e) },
		OnTensorChunk:    func(e tensorchat.ChunkEvent) error { return forward(e) },
		OnTensorComplete: func(e tensorchat.TensorCompleteEvent) error { return forward(e) },
		OnComplete:       func(e tensorchat.CompleteEvent) error { return forward(e) },
		OnError:          func(e tensorchat.ErrorEvent) { _ = forward(e) },
	}
}

// EventMsg wraps a callback event for delivery to the Bubble Tea model.
// Event is one of the tensorchat event types.
type EventMsg struct {
	Event any
}

// DoneMsg signals that the submission returned.
type DoneMsg struct {
	Err error
}
