package scenes

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorText      = lipgloss.Color("#FFFFFF")
	colorDim       = lipgloss.Color("#969696")
	colorSubtle    = lipgloss.Color("#C8C8C8")
	colorHighlight = lipgloss.Color("#FFD700")
	colorNPC       = lipgloss.Color("#646464")
	colorWarning   = lipgloss.Color("#FF3232")
	colorBar       = lipgloss.Color("#00C864")
	colorFrame     = lipgloss.Color("#6464FF")
	colorConnect   = lipgloss.Color("#64FF64")
	colorLine      = lipgloss.Color("#323232")
)

// Posture accents for the instruction bar.
var postureAccent = map[string]lipgloss.Color{
	"defensive": lipgloss.Color("#FF6464"),
	"neutral":   lipgloss.Color("#64FF64"),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorHighlight)
	bodyStyle  = lipgloss.NewStyle().Foreground(colorText)
	hintStyle  = lipgloss.NewStyle().Foreground(colorDim).MarginTop(1)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
)

// bodyWidth keeps paragraphs readable on wide terminals.
func bodyWidth(width int) int {
	w := width * 7 / 10
	if w < 20 {
		w = 20
	}
	if w > 100 {
		w = 100
	}
	return w
}

func place(width, height int, content string) string {
	if width <= 0 || height <= 0 {
		return content
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func stack(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Center, kept...)
}
