// ABOUTME: Fixes the lipgloss background before bubbletea's init queries the terminal
// ABOUTME: Imported for side effects by cmd/openagent ahead of the tui package

package termfix

import "github.com/charmbracelet/lipgloss"

func init() {
	// bubbletea's init asks lipgloss for the background color, which sends
	// OSC 10/11 queries whose replies land in the input line. With the
	// background already set the query never fires. This package must not
	// import bubbletea so its init runs first.
	lipgloss.SetHasDarkBackground(true)
}
