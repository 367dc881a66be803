// ABOUTME: Lipgloss styles for the chat view, input line, and footer
// ABOUTME: A single palette built once; roles map to foreground colors

package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the pre-built lipgloss styles used by the view.
type Styles struct {
	Title     lipgloss.Style
	Status    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Hint      lipgloss.Style
	Selected  lipgloss.Style

	FooterLeft  lipgloss.Style
	FooterRight lipgloss.Style
	Online      lipgloss.Style
	Offline     lipgloss.Style
}

const (
	colorCopper = lipgloss.Color("173")
	colorMuted  = lipgloss.Color("244")
	colorText   = lipgloss.Color("252")
	colorGreen  = lipgloss.Color("71")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
)

// DefaultStyles returns the built-in palette.
func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Foreground(colorCopper).Bold(true),
		Status:    lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		User:      lipgloss.NewStyle().Foreground(colorBlue).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(colorText),
		System:    lipgloss.NewStyle().Foreground(colorMuted),
		Error:     lipgloss.NewStyle().Foreground(colorRed),
		Prompt:    lipgloss.NewStyle().Foreground(colorCopper).Bold(true),
		Hint:      lipgloss.NewStyle().Foreground(colorMuted),
		Selected:  lipgloss.NewStyle().Foreground(colorCopper),

		FooterLeft:  lipgloss.NewStyle().Foreground(colorMuted),
		FooterRight: lipgloss.NewStyle().Foreground(colorMuted),
		Online:      lipgloss.NewStyle().Foreground(colorGreen),
		Offline:     lipgloss.NewStyle().Foreground(colorRed),
	}
}
