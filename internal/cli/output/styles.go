package output

import "github.com/charmbracelet/lipgloss"

// Status icons.
const (
	IconSuccess   = "✓"
	IconFailed    = "✗"
	IconCancelled = "⊘"
	IconSkipped   = "-"
	IconPending   = "•"
	IconWarning   = "!"
)

// Styles holds the lipgloss styles used by the renderer and commands.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Target  lipgloss.Style
	Path    lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer, so colour follows
// that renderer's profile.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("14")),
		Target:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Path:    r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}
