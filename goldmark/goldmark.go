// Package goldmark renders tensorchat session results for the terminal.
// Tensor content is treated as markdown, parsed with goldmark and styled
// with lipgloss.
package goldmark

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/tensorchat"
	"github.com/rivo/uniseg"
)

const defaultWidth = 80

// Render returns a report of r: a summary line, then one section per
// tensor in index order with its status, length and rendered content.
// Failed tensors show their error below any partial content.
func Render(r tensorchat.SessionResult, width int, theme tensorchat.Theme) string {
	if width <= 0 {
		width = defaultWidth
	}
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted))
	errStyle := lipgloss.NewStyle().Foreground(ansiColor(theme.Error))

	var b strings.Builder
	b.WriteString(summary(r, theme))
	b.WriteString("\n")
	if r.Err != "" {
		b.WriteString(errStyle.Render("error: " + r.Err))
		b.WriteString("\n")
	}

	for _, t := range r.Tensors {
		b.WriteString("\n")
		b.WriteString(tensorHeader(t, width, theme))
		b.WriteString("\n")
		if t.Content != "" {
			b.WriteString(RenderMarkdown(t.Content, width, theme))
			b.WriteString("\n")
		} else if t.Status != tensorchat.TensorFailed {
			b.WriteString(muted.Render("(no content)"))
			b.WriteString("\n")
		}
		if t.Err != "" {
			b.WriteString(errStyle.Width(width).Render("✗ " + t.Err))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Length returns the user-perceived character count of s.
func Length(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

func summary(r tensorchat.SessionResult, theme tensorchat.Theme) string {
	accent := lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true)
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted))

	parts := []string{
		fmt.Sprintf("%d/%d completed", r.Completed(), len(r.Tensors)),
		r.Status.String(),
	}
	if r.SearchApplied {
		parts = append(parts, "search")
	}
	if d := r.Duration(); d > 0 {
		parts = append(parts, d.Round(10*time.Millisecond).String())
	}
	model := r.Model
	if model == "" {
		model = "session"
	}
	return accent.Render(model) + " " + muted.Render(strings.Join(parts, " · "))
}

func tensorHeader(t tensorchat.TensorResult, width int, theme tensorchat.Theme) string {
	status := lipgloss.NewStyle().Foreground(ansiColor(theme.StatusColor(t.Status))).Bold(true)
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted))

	label := fmt.Sprintf("Tensor %d", t.Index)
	meta := fmt.Sprintf("%d chars", Length(t.Content))
	if !t.StartedAt.IsZero() && !t.CompletedAt.IsZero() {
		meta += " · " + t.CompletedAt.Sub(t.StartedAt).Round(10*time.Millisecond).String()
	}
	head := "── " + label + " · " + t.Status.String() + " · " + meta + " "
	fill := width - lipgloss.Width(head)
	if fill < 0 {
		fill = 0
	}
	return muted.Render("── ") + status.Render(label+" · "+t.Status.String()) +
		muted.Render(" · "+meta+" "+strings.Repeat("─", fill))
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
