package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// Start exports start for testing.
func Start(m Model) (Model, tea.Cmd) {
	tm, cmd := m.start()
	return tm.(Model), cmd
}
