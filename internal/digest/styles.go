package digest

import "github.com/charmbracelet/lipgloss"

var (
	// Adaptive colors for dark/light terminals
	colorPrimary   = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorSecondary = lipgloss.AdaptiveColor{Light: "#3D3D3D", Dark: "#ABABAB"}
	colorDim       = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorAccent    = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}
	colorBorder    = lipgloss.AdaptiveColor{Light: "#DBDBDB", Dark: "#383838"}
	colorGreen     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorAmber     = lipgloss.AdaptiveColor{Light: "#C58A00", Dark: "#F2B84B"}

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			PaddingLeft(1)

	headerDateStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	categoryStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	streamStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	freshStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	staleStyle = lipgloss.NewStyle().
			Foreground(colorAmber)

	alertStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)
)

func freshnessStyle(f Freshness) lipgloss.Style {
	switch f {
	case Fresh:
		return freshStyle
	case Stale:
		return staleStyle
	case Malformed:
		return alertStyle
	default:
		return dimStyle
	}
}
