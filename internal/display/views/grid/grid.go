// Package grid renders the class view as a summary row and a grid of
// participant tiles.
package grid

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/display/theme"
	"github.com/cardio-live/cardiolive/internal/zone"
)

const (
	tileWidth = 22
	nameWidth = tileWidth - 4
	barWidth  = tileWidth - 2
)

// Model holds the grid state.
type Model struct {
	Width int
	view  aggregate.View
}

func New() Model {
	return Model{}
}

// SetView replaces the rendered view.
func (m *Model) SetView(v aggregate.View) {
	m.view = v
}

// View renders the summary row followed by the tiles.
func (m Model) View() string {
	width := max(m.Width, 40)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderTiles(width),
	)
}

// renderStatsRow shows the aggregate and per-zone counts in a single row.
func (m Model) renderStatsRow(width int) string {
	agg := m.view.Aggregate
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := []string{
		statStyle.Foreground(theme.ColorBright).Render(fmt.Sprintf("Riders: %d", agg.Count)),
		statStyle.Foreground(theme.ColorBright).Render("Avg: " + formatBPM(agg.Avg)),
		statStyle.Foreground(theme.ColorDimmed).Render("Min: " + formatBPM(agg.Min)),
		statStyle.Foreground(theme.ColorDimmed).Render("Max: " + formatBPM(agg.Max)),
	}
	for _, info := range zone.All() {
		stats = append(stats, statStyle.Foreground(theme.ZoneColor(info.Zone)).
			Render(fmt.Sprintf("Z%d %d", info.Zone, agg.InZone(info.Zone))))
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderTiles(width int) string {
	if m.view.Empty() {
		return theme.StyleDimmed.Render("  Waiting for heart-rate monitors...")
	}

	perRow := max(1, width/(tileWidth+1))
	var rows []string
	var row []string
	for _, r := range m.view.Samples {
		row = append(row, renderTile(r))
		if len(row) == perRow {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderTile(r aggregate.Row) string {
	name := r.Name
	if len(name) > nameWidth {
		name = name[:nameWidth-1] + "…"
	}
	if g := theme.AlertGlyph(r.Alert); g != "" {
		name = g + " " + name
	}

	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(name),
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d bpm", r.HeartRate)),
		fmt.Sprintf("%s %d%%", r.ZoneLabel, r.PercentMax),
		renderPercentBar(r.PercentMax, barWidth-2),
		theme.SourceBadge(r.Source),
	}
	return theme.StyleTile.
		Width(tileWidth).
		Background(theme.ZoneColor(r.Zone)).
		Render(strings.Join(lines, "\n"))
}

// renderPercentBar draws percent of max heart rate as a bar, capped at full.
func renderPercentBar(pct, width int) string {
	if width < 4 {
		width = 4
	}
	filled := max(0, min(pct*width/100, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatBPM(v *int) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%d", *v)
}
