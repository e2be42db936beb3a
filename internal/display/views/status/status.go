package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/cardio-live/cardiolive/internal/display/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected    bool
	SessionName  string
	Participants int
	Seq          uint64
	Err          string
	Width        int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Live")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	name := m.SessionName
	if name == "" {
		name = "No session"
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep +
		theme.StyleHeader.Render(name) + sep +
		fmt.Sprintf("%d tracked", m.Participants)
	if m.Seq > 0 {
		content += sep + theme.StyleDimmed.Render(fmt.Sprintf("seq %d", m.Seq))
	}
	if m.Err != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.Err)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
