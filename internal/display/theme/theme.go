// Package theme provides the Lip Gloss color palette and reusable styles
// for the live display. It is a leaf package apart from the zone and live
// value types it colors.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/zone"
)

var ColorDefault = lipgloss.Color("#9ca3af")

// Source badge colors.
var (
	ColorSourceRadio = lipgloss.Color("#06b6d4")
	ColorSourceCloud = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorTileFg  = lipgloss.Color("#0b0e11")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// ZoneColor returns the tile color for a training zone.
func ZoneColor(z zone.Zone) lipgloss.Color {
	if !z.Valid() {
		return ColorDefault
	}
	return lipgloss.Color(z.Info().Color)
}

// SourceBadge returns a colored badge string for a device source.
func SourceBadge(source live.Source) string {
	switch source {
	case live.SourceRadio:
		return lipgloss.NewStyle().Foreground(ColorSourceRadio).Render("[BLE]")
	case live.SourceCloud:
		return lipgloss.NewStyle().Foreground(ColorSourceCloud).Render("[NET]")
	default:
		return lipgloss.NewStyle().Foreground(ColorDefault).Render("[?]")
	}
}

// AlertGlyph marks a tile whose heart rate crossed an alert threshold.
func AlertGlyph(alert string) string {
	switch alert {
	case "high":
		return "▲"
	case "low":
		return "▼"
	default:
		return ""
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleTile = lipgloss.NewStyle().
			Foreground(ColorTileFg).
			Padding(0, 1).
			Margin(0, 1, 1, 0)
)
