package color

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestInitialize(t *testing.T) {
	t.Setenv("VALHEIMCLI_THEME", "")
	t.Setenv("NO_COLOR", "")

	tests := []struct {
		name       string
		isDarkMode bool
		expected   bool
	}{
		{"set dark mode", true, true},
		{"set light mode", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Initialize(tt.isDarkMode)
			assert.Equal(t, tt.expected, lipgloss.HasDarkBackground())
		})
	}
}

func TestInitialize_ThemeOverride(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("VALHEIMCLI_THEME", "light")

	Initialize(true)
	assert.False(t, lipgloss.HasDarkBackground())
}

func TestDisable(t *testing.T) {
	orig := lipgloss.ColorProfile()
	t.Cleanup(func() { lipgloss.SetColorProfile(orig) })

	Disable()
	assert.Equal(t, "PASSED", PassedStyle.Render("PASSED"))
}
