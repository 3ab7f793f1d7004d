package color

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic palette. Each color adapts to the terminal background.
var (
	Primary = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#9D86E9"}
	Success = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#73F59F"}
	Warning = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFD166"}
	Error   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"}
	Info    = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"}
	Muted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8A8A8A"}
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	PassedStyle  = lipgloss.NewStyle().Bold(true).Foreground(Success)
	FailedStyle  = lipgloss.NewStyle().Bold(true).Foreground(Error)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(Error).Underline(true)
	SkippedStyle = lipgloss.NewStyle().Foreground(Warning)
	InfoStyle    = lipgloss.NewStyle().Foreground(Info)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	OutputStyle  = lipgloss.NewStyle().Foreground(Muted).PaddingLeft(6)
	PromptStyle  = lipgloss.NewStyle().Bold(true).Foreground(Primary)
)

// Initialize sets the background lipgloss assumes when resolving adaptive
// colors and honours NO_COLOR and VALHEIMCLI_THEME.
func Initialize(isDarkMode bool) {
	switch strings.ToLower(os.Getenv("VALHEIMCLI_THEME")) {
	case "dark":
		isDarkMode = true
	case "light":
		isDarkMode = false
	}
	lipgloss.SetHasDarkBackground(isDarkMode)

	if os.Getenv("NO_COLOR") != "" {
		Disable()
	}
}

// Disable renders every style as plain text.
func Disable() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
