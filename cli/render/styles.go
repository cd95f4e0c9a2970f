package render

import "github.com/charmbracelet/lipgloss"

// Color palette for TTY output.
var (
	colorPrimary = lipgloss.Color("#7C3AED") // purple
	colorSuccess = lipgloss.Color("#10B981") // green
	colorWarning = lipgloss.Color("#F59E0B") // amber
	colorError   = lipgloss.Color("#EF4444") // red
	colorMuted   = lipgloss.Color("#6B7280") // gray
)

// Styles used in table output and run summaries.
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// OutcomeStyle returns the style for a run outcome string.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "success", "no-op":
		return SuccessStyle
	case "partial", "incomplete":
		return WarningStyle
	case "failed":
		return ErrorStyle
	default:
		return MutedStyle
	}
}

// Outcome renders an outcome string, colored unless noColor is set.
func (r *Renderer) Outcome(outcome string) string {
	if r.noColor {
		return outcome
	}
	return OutcomeStyle(outcome).Render(outcome)
}

// styledHeaders colors table headers for TTY output.
func (r *Renderer) styledHeaders(headers []string) []string {
	if r.noColor {
		return headers
	}
	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = HeaderStyle.Render(h)
	}
	return styled
}
