// ABOUTME: Entry point for the interactive chat UI
// ABOUTME: Creates the tea.Program on stderr and blocks until the user exits

package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive UI. Blocks until the user exits.
func Run(deps Deps) error {
	p := tea.NewProgram(
		NewModel(deps),
		tea.WithOutput(os.Stderr),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("bubble tea: %w", err)
	}
	return nil
}
