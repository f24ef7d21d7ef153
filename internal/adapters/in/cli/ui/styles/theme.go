package styles

import "github.com/charmbracelet/lipgloss"

// Theme contains the composed styles of the CLI.
var Theme = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Label   lipgloss.Style
	Output  lipgloss.Style
}{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary),

	Muted: lipgloss.NewStyle().
		Foreground(ColorTextMuted),

	Bold: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorText),

	Success: lipgloss.NewStyle().
		Foreground(ColorSuccess),

	Error: lipgloss.NewStyle().
		Foreground(ColorError),

	Warning: lipgloss.NewStyle().
		Foreground(ColorWarning),

	Label: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Width(10),

	Output: lipgloss.NewStyle().
		Foreground(ColorText).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(ColorBorder).
		PaddingLeft(1),
}

// RenderSuccess renders a success line with its icon.
func RenderSuccess(msg string) string {
	return Theme.Success.Render(IconSuccess + " " + msg)
}

// RenderError renders an error line with its icon.
func RenderError(msg string) string {
	return Theme.Error.Render(IconError + " " + msg)
}

// RenderWarning renders a warning line with its icon.
func RenderWarning(msg string) string {
	return Theme.Warning.Render(IconWarning + " " + msg)
}
