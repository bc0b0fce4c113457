package styles

import (
	"chorus/internal/models"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the set of colors that depend on the terminal background.
type Theme struct {
	Primary   lipgloss.Color
	TextMuted lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	ModeChat   lipgloss.Color
	ModeSearch lipgloss.Color
	Citation   lipgloss.Color
	Recording  lipgloss.Color
}

var DarkTheme = Theme{
	Primary:   lipgloss.Color("#B39DDB"),
	TextMuted: lipgloss.Color("#64748B"),

	Success: lipgloss.Color("#34D399"),
	Warning: lipgloss.Color("#FBBF24"),
	Error:   lipgloss.Color("#FB7185"),

	ModeChat:   lipgloss.Color("#81D4FA"),
	ModeSearch: lipgloss.Color("#CE93D8"),
	Citation:   lipgloss.Color("#80CBC4"),
	Recording:  lipgloss.Color("#EF9A9A"),
}

var LightTheme = Theme{
	Primary:   lipgloss.Color("#4F46E5"),
	TextMuted: lipgloss.Color("#A1A1AA"),

	Success: lipgloss.Color("#10B981"),
	Warning: lipgloss.Color("#F59E0B"),
	Error:   lipgloss.Color("#EF4444"),

	ModeChat:   lipgloss.Color("#0288D1"),
	ModeSearch: lipgloss.Color("#7C3AED"),
	Citation:   lipgloss.Color("#00897B"),
	Recording:  lipgloss.Color("#D32F2F"),
}

// CurrentTheme holds the active theme (set at runtime based on terminal)
var CurrentTheme = DarkTheme

// InitTheme sets the current theme based on terminal background
func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}

func ModeColor(mode models.AppMode) lipgloss.Color {
	if mode == models.ModeSearch {
		return CurrentTheme.ModeSearch
	}
	return CurrentTheme.ModeChat
}
