package tui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	badgeStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#0f172a")).Background(lipgloss.Color("#fbbf24")).Bold(true)
	zeroStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#9ca3af")).Background(lipgloss.Color("#1f2937"))
	toastStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#38bdf8")).Padding(0, 1)
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#374151")).Padding(0, 1).MarginRight(1)
)

func countBadge(label string, n int) string {
	style := zeroStyle
	if n > 0 {
		style = badgeStyle
	}
	return style.Render(label + " " + strconv.Itoa(n))
}
