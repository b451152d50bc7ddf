package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/tensorchat"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the progress TUI. The submission
// starts as soon as the program initializes.
type Model struct {
	// Spinner animates active tensors. Exported for test access.
	Spinner spinner.Model

	submit SubmitFunc
	styles Styles
	width  int

	model   string
	search  bool
	tensors []tensorRow
	errs    []string

	parent  context.Context
	running bool
	done    bool
	cancel  context.CancelFunc
	eventCh chan any
	doneCh  chan error
	err     error
}

// tensorRow is the display state of one tensor.
type tensorRow struct {
	status  tensorchat.TensorStatus
	content string
	err     string
}

// New creates a TUI Model that runs submit.
func New(submit SubmitFunc, theme tensorchat.Theme) Model {
	styles := NewStyles(theme)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = styles.Streaming
	return Model{
		Spinner: sp,
		submit:  submit,
		styles:  styles,
		width:   80,
	}
}

// WithContext returns a copy of m whose submission is derived from ctx, so
// cancelling ctx cancels the submission. [Run] sets it when unset.
func (m Model) WithContext(ctx context.Context) Model {
	m.parent = ctx
	return m
}

// Running reports whether the submission is in flight.
func (m Model) Running() bool { return m.running }

// Done reports whether the submission returned.
func (m Model) Done() bool { return m.done }

// Err returns the error the submission returned, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, func() tea.Msg { return startMsg{} })
}

// startMsg asks Update to launch the submission. Channels are created in
// Update so the launched commands and the model share them.
type startMsg struct{}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case startMsg:
		if m.running || m.done {
			return m, nil
		}
		return m.start()

	case EventMsg:
		m = m.apply(msg.Event)
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case DoneMsg:
		m.running = false
		m.done = true
		m.cancel = nil
		m.eventCh = nil
		m.doneCh = nil
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit
	case tea.KeyEsc:
		if !m.running {
			return m, tea.Quit
		}
	case tea.KeyRunes:
		if !m.running && msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) start() (tea.Model, tea.Cmd) {
	parent := m.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.eventCh = make(chan any, 256)
	m.doneCh = make(chan error, 1)
	m.running = true
	return m, tea.Batch(
		startSubmit(ctx, m.submit, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
	)
}

// apply folds one callback event into the display state.
func (m Model) apply(event any) Model {
	switch e := event.(type) {
	case tensorchat.StartEvent:
		m.model = e.Model
		m.search = e.SearchApplied
		m.tensors = make([]tensorRow, e.TotalTensors)
		m.errs = nil
	case tensorchat.ProgressEvent:
		// Pending until content or search arrives.
	case tensorchat.SearchProgressEvent:
		m = m.setStatus(e.Index, tensorchat.TensorSearching)
	case tensorchat.SearchCompleteEvent:
	case tensorchat.ChunkEvent:
		if r := m.row(e.Index); r != nil {
			r.content += e.Chunk
			r.status = tensorchat.TensorStreaming
		}
	case tensorchat.TensorCompleteEvent:
		if r := m.row(e.Index); r != nil {
			r.content = e.Content
			r.status = tensorchat.TensorCompleted
		}
	case tensorchat.ErrorEvent:
		if e.Index != nil {
			if r := m.row(*e.Index); r != nil {
				r.err = e.Err.Error()
				var te *tensorchat.TensorError
				if errors.As(e.Err, &te) {
					r.status = tensorchat.TensorFailed
				}
				return m
			}
		}
		m.errs = append(m.errs, e.Err.Error())
	}
	return m
}

func (m Model) row(i int) *tensorRow {
	if i < 0 || i >= len(m.tensors) {
		return nil
	}
	return &m.tensors[i]
}

func (m Model) setStatus(i int, st tensorchat.TensorStatus) Model {
	if r := m.row(i); r != nil {
		r.status = st
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	header := "Waiting for session..."
	if m.model != "" {
		header = m.styles.Accent.Render(m.model)
		if m.search {
			header += m.styles.Muted.Render(" · search")
		}
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	for i, r := range m.tensors {
		b.WriteString(m.rowView(i, r))
		b.WriteString("\n")
	}
	for _, e := range m.errs {
		b.WriteString(m.styles.Error.Render(runewidth.Truncate("✗ "+e, m.width, "…")))
		b.WriteString("\n")
	}
	if len(m.tensors) > 0 || len(m.errs) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) rowView(i int, r tensorRow) string {
	var icon string
	switch r.status {
	case tensorchat.TensorSearching, tensorchat.TensorStreaming:
		icon = m.Spinner.View()
	case tensorchat.TensorCompleted:
		icon = m.styles.Success.Render("✓")
	case tensorchat.TensorFailed:
		icon = m.styles.Error.Render("✗")
	default:
		icon = m.styles.Pending.Render("·")
	}

	label := fmt.Sprintf("%-9s", fmt.Sprintf("Tensor %d", i))
	status := m.styles.Status(r.status).Render(fmt.Sprintf("%-9s", r.status))
	count := m.styles.Muted.Render(fmt.Sprintf("%6d chars", uniseg.GraphemeClusterCount(r.content)))

	line := icon + " " + label + " " + status + " " + count
	avail := m.width - lipgloss.Width(line) - 1
	if avail < 8 {
		return line
	}
	if r.err != "" {
		return line + " " + m.styles.Error.Render(runewidth.Truncate(r.err, avail, "…"))
	}
	return line + " " + runewidth.Truncate(preview(r.content), avail, "…")
}

// preview collapses whitespace so multi-line content fits one row.
func preview(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (m Model) statusLine() string {
	completed := 0
	for _, r := range m.tensors {
		if r.status == tensorchat.TensorCompleted {
			completed++
		}
	}
	progress := fmt.Sprintf("%d/%d completed", completed, len(m.tensors))
	switch {
	case m.err != nil:
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)) + m.styles.Muted.Render(" · q to quit")
	case m.done:
		return m.styles.Muted.Render(progress + " · done · q to quit")
	case m.running:
		return m.styles.Muted.Render(progress + " · Ctrl+C to cancel")
	case len(m.tensors) > 0:
		return m.styles.Muted.Render(progress)
	}
	return m.styles.Muted.Render("Starting...")
}

// startSubmit runs the submission in a goroutine and signals completion.
func startSubmit(ctx context.Context, submit SubmitFunc, eventCh chan<- any, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		cb := Callbacks(func(msg tea.Msg) {
			ev, ok := msg.(EventMsg)
			if !ok {
				return
			}
			select {
			case eventCh <- ev.Event:
			case <-ctx.Done():
			}
		})
		err := submit(ctx, cb)
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event from the channel.
// When the channel closes, it reads the error from doneCh and returns
// DoneMsg.
func listenForEvent(ch <-chan any, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return DoneMsg{Err: <-doneCh}
		}
		return EventMsg{Event: evt}
	}
}
