package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/tensorchat"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	Pending   lipgloss.Style
	Searching lipgloss.Style
	Streaming lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Accent    lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t tensorchat.Theme) Styles {
	return Styles{
		Pending:   lipgloss.NewStyle().Foreground(ansiColor(t.Pending)).Faint(true),
		Searching: lipgloss.NewStyle().Foreground(ansiColor(t.Searching)),
		Streaming: lipgloss.NewStyle().Foreground(ansiColor(t.Streaming)),
		Success:   lipgloss.NewStyle().Foreground(ansiColor(t.Success)),
		Error:     lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Muted:     lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent:    lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
	}
}

// Status returns the style for a tensor status.
func (s Styles) Status(st tensorchat.TensorStatus) lipgloss.Style {
	switch st {
	case tensorchat.TensorSearching:
		return s.Searching
	case tensorchat.TensorStreaming:
		return s.Streaming
	case tensorchat.TensorCompleted:
		return s.Success
	case tensorchat.TensorFailed:
		return s.Error
	default:
		return s.Pending
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
