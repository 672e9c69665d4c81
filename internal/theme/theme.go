// Package theme provides the Lip Gloss color palette and reusable styles
// for the statsview TUI. Besides Lip Gloss it only imports model.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/googol/statsview/internal/model"
)

// Connection colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#dc2626")
)

// Result level colors.
var (
	ColorSuccess = lipgloss.Color("#16a34a")
	ColorWarning = lipgloss.Color("#d97706")
	ColorFailure = lipgloss.Color("#dc2626")
)

// Event log kind colors.
var (
	ColorChannel = lipgloss.Color("#2563eb")
	ColorStats   = lipgloss.Color("#06b6d4")
	ColorIndex   = lipgloss.Color("#7c3aed")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// ConnectionColor returns the badge color for a connection state.
func ConnectionColor(state model.ConnectionState) lipgloss.Color {
	switch state {
	case model.Connected:
		return ColorConnected
	case model.Connecting:
		return ColorConnecting
	default:
		return ColorDisconnected
	}
}

// ConnectionBadge returns the glyph and label for a connection state.
func ConnectionBadge(state model.ConnectionState) string {
	switch state {
	case model.Connected:
		return "● Connected"
	case model.Connecting:
		return "◌ Connecting..."
	default:
		return "○ Disconnected"
	}
}

// LevelColor returns the color for an index result level.
func LevelColor(level model.Level) lipgloss.Color {
	switch level {
	case model.LevelSuccess:
		return ColorSuccess
	case model.LevelWarning:
		return ColorWarning
	default:
		return ColorFailure
	}
}

// LevelGlyph returns a glyph for an index result level.
func LevelGlyph(level model.Level) string {
	switch level {
	case model.LevelSuccess:
		return "✓"
	case model.LevelWarning:
		return "!"
	default:
		return "✗"
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
)
