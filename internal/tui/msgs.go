// ABOUTME: Custom tea.Msg types for the chat UI
// ABOUTME: Stream ticks, command results, startup lookups, and backend exit

package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mauromedda/openagent-go/internal/backend"
)

// streamPollInterval is how often an active stream is drained.
const streamPollInterval = 30 * time.Millisecond

// streamTickMsg drives TryNext polling of the active stream.
type streamTickMsg struct{}

// commandResultMsg carries the text output of a slash command. rag and
// model, when set, also refresh the footer.
type commandResultMsg struct {
	text  string
	err   error
	rag   *backend.RagStatusResponse
	model string
}

// ragStatusMsg refreshes the RAG indicator.
type ragStatusMsg struct{ status *backend.RagStatusResponse }

// modelMsg refreshes the model shown in the footer.
type modelMsg struct{ model string }

// tokensMsg replaces the token summary.
type tokensMsg struct{ tokens *backend.TokenStats }

// sessionMsg reports the session created at startup.
type sessionMsg struct {
	session *backend.Session
	err     error
}

// cancelDoneMsg reports that chat.cancel has returned.
type cancelDoneMsg struct{}

// backendExitedMsg is sent once when the child process goes away.
type backendExitedMsg struct{}

// statusClearMsg clears a transient status line if it is still current.
type statusClearMsg struct{ seq int }

func streamTick() tea.Cmd {
	return tea.Tick(streamPollInterval, func(time.Time) tea.Msg { return streamTickMsg{} })
}
