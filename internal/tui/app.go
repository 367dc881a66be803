// ABOUTME: Chat model for the interactive UI: input line, transcript, streamed replies, footer
// ABOUTME: The active stream is drained with TryNext on a tick and cleared on Done or failure

package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mauromedda/openagent-go/internal/backend"
	"github.com/mauromedda/openagent-go/internal/jsonrpc"
	pilog "github.com/mauromedda/openagent-go/internal/log"
)

// Client is the slice of the backend client the UI uses.
type Client interface {
	ChatSendStream(ctx context.Context, message string) (*backend.Stream, error)
	ClearStream()
	ChatCancel(ctx context.Context) (bool, error)
	SessionCreate(ctx context.Context, name, codebasePath string) (*backend.Session, error)
	SessionList(ctx context.Context, limit int) ([]backend.Session, error)
	TokensGet(ctx context.Context) (*backend.TokenStats, error)
	TokensSetBudget(ctx context.Context, budget uint64) error
	ToolsList(ctx context.Context) ([]backend.ToolInfo, error)
	RagSearch(ctx context.Context, query string, n int) (*backend.RagSearchResponse, error)
	RagIngest(ctx context.Context, jsonPath string) (*backend.RagIngestResponse, error)
	RagStatus(ctx context.Context) (*backend.RagStatusResponse, error)
	CodebaseInit(ctx context.Context, path string, clear bool) (*backend.CodebaseInitResponse, error)
	ModelGet(ctx context.Context) (string, error)
	ModelList(ctx context.Context) (*backend.ModelListResponse, error)
	ModelSet(ctx context.Context, id string) (*backend.ModelSetResponse, error)
}

var _ Client = (*backend.Client)(nil)

// Deps provides the UI's external dependencies.
type Deps struct {
	Client        Client          // nil runs the UI offline
	Exited        <-chan struct{} // closed when the backend process exits
	Cwd           string
	Version       string
	ServerVersion string
	// MarkdownStyle is a glamour style name; empty detects from the terminal.
	MarkdownStyle string
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleSystem
	roleError
)

func (r role) String() string {
	switch r {
	case roleUser:
		return "user"
	case roleAssistant:
		return "assistant"
	case roleError:
		return "error"
	default:
		return "system"
	}
}

type entry struct {
	role    role
	content string
	at      time.Time
}

// Model is the bubbletea model for the chat UI.
type Model struct {
	ctx    context.Context
	client Client
	exited <-chan struct{}
	cwd    string
	deps   Deps

	styles Styles
	md     *MarkdownRenderer

	input   []rune
	entries []entry

	stream     *backend.Stream
	cancelling bool // chat.cancel sent, response not yet seen

	online    bool
	session   *backend.Session
	model     string
	ragCount  int
	tokens    backend.TokenStats
	status    string
	statusSeq int

	width, height int
	quitting      bool
}

// NewModel builds the chat model.
func NewModel(deps Deps) *Model {
	cwd := deps.Cwd
	if cwd == "" {
		cwd = "."
	}
	return &Model{
		ctx:    context.Background(),
		client: deps.Client,
		exited: deps.Exited,
		cwd:    cwd,
		deps:   deps,
		styles: DefaultStyles(),
		md:     NewMarkdownRenderer(deps.MarkdownStyle),
		online: deps.Client != nil,
		width:  80,
		height: 24,
	}
}

// Init starts the session and background lookups when a backend is attached.
func (m *Model) Init() tea.Cmd {
	if m.client == nil {
		m.status = "Offline: backend not running"
		return nil
	}

	c, ctx, cwd := m.client, m.ctx, m.cwd
	cmds := []tea.Cmd{
		func() tea.Msg {
			s, err := c.SessionCreate(ctx, filepath.Base(cwd), cwd)
			return sessionMsg{session: s, err: err}
		},
		func() tea.Msg {
			st, err := c.RagStatus(ctx)
			if err != nil {
				return nil
			}
			return ragStatusMsg{status: st}
		},
		func() tea.Msg {
			model, err := c.ModelGet(ctx)
			if err != nil {
				return nil
			}
			return modelMsg{model: model}
		},
	}
	if m.exited != nil {
		exited := m.exited
		cmds = append(cmds, func() tea.Msg {
			<-exited
			return backendExitedMsg{}
		})
	}
	return tea.Batch(cmds...)
}

// Update handles input, stream ticks, and command results.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case streamTickMsg:
		if m.stream == nil {
			return m, nil
		}
		m.pollStream()
		if m.stream != nil {
			return m, streamTick()
		}
		return m, m.refreshTokens()

	case commandResultMsg:
		if msg.err != nil {
			m.addEntry(roleError, errorText(msg.err))
		} else if msg.text != "" {
			m.addSystem(msg.text)
		}
		if msg.rag != nil {
			m.ragCount = msg.rag.Count
		}
		if msg.model != "" {
			m.model = msg.model
		}
		return m, nil

	case sessionMsg:
		if msg.err != nil {
			return m, m.setStatus("Session error: " + msg.err.Error())
		}
		m.session = msg.session
		return m, m.setStatus("Connected: " + filepath.Base(m.cwd))

	case ragStatusMsg:
		if msg.status != nil {
			m.ragCount = msg.status.Count
		}
		return m, nil

	case modelMsg:
		m.model = msg.model
		return m, nil

	case tokensMsg:
		if msg.tokens != nil {
			m.tokens = *msg.tokens
		}
		return m, nil

	case backendExitedMsg:
		m.online = false
		m.client = nil
		m.cancelling = false
		pilog.Warn("backend exited; continuing offline")
		if m.stream != nil {
			m.pollStream()
		}
		return m, m.setStatus("Backend exited")

	case cancelDoneMsg:
		m.cancelling = false
		return m, nil

	case statusClearMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		if m.stream != nil {
			return m.cancelStream()
		}
		m.quitting = true
		return tea.Quit

	case tea.KeyEnter:
		return m.submit()

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}

	case tea.KeyTab:
		if s := suggestCommands(string(m.input)); len(s) > 0 {
			m.input = []rune("/" + s[0].name + " ")
		}

	case tea.KeySpace:
		m.input = append(m.input, ' ')

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return nil
}

// submit sends the input line as a chat message or runs it as a command.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(string(m.input))
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		m.input = m.input[:0]
		return m.runCommand(text)
	}

	// A blocked prompt stays in the input line for the next Enter.
	if m.stream != nil {
		return m.setStatus("Wait for the current reply to finish")
	}
	if m.cancelling {
		return m.setStatus("Waiting for the cancelled reply to stop")
	}
	m.input = m.input[:0]

	m.addEntry(roleUser, text)

	if m.client == nil {
		m.addEntry(roleAssistant, "Backend not connected. Run with the Python backend for full functionality.")
		return nil
	}

	s, err := m.client.ChatSendStream(m.ctx, text)
	if err != nil {
		m.addEntry(roleError, errorText(err))
		return nil
	}
	m.stream = s
	m.addEntry(roleAssistant, "")
	return streamTick()
}

// pollStream drains every event available right now.
func (m *Model) pollStream() {
	for m.stream != nil {
		ev, ok, err := m.stream.TryNext()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.addEntry(roleError, errorText(err))
			}
			m.finishStream()
			return
		}
		if !ok {
			return
		}
		switch ev.Kind {
		case backend.EventChunk:
			m.appendToReply(ev.Text)
		case backend.EventDone:
			if ev.Tokens != nil {
				m.tokens = *ev.Tokens
			}
			m.finishStream()
			return
		}
	}
}

// errorText renders a failure for the transcript, with a hint for the
// server errors a user can act on.
func errorText(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Kind == backend.KindRPC {
		switch be.Code {
		case jsonrpc.CodeBudgetExceeded:
			return "Error: " + err.Error() + "\n  Raise the limit with /budget <tokens>"
		case jsonrpc.CodeSessionNotFound:
			return "Error: " + err.Error() + "\n  Restart openagent to open a new session"
		case jsonrpc.CodeCancelled:
			return "Cancelled"
		}
	}
	return "Error: " + err.Error()
}

func (m *Model) appendToReply(text string) {
	if n := len(m.entries); n > 0 && m.entries[n-1].role == roleAssistant {
		m.entries[n-1].content += text
		return
	}
	m.addEntry(roleAssistant, text)
}

// finishStream releases the backend's stream slot.
func (m *Model) finishStream() {
	m.stream = nil
	if m.client != nil {
		m.client.ClearStream()
	}
	m.md.Forget()
}

// cancelStream drops the active reply and asks the server to stop it.
// Stream notifications carry no request id, so new prompts wait for the
// chat.cancel response: anything the old turn wrote before it is read
// while no stream is installed and dropped.
func (m *Model) cancelStream() tea.Cmd {
	c, ctx := m.client, m.ctx
	m.finishStream()
	m.addSystem("Cancelled")
	if c == nil {
		return nil
	}
	m.cancelling = true
	return func() tea.Msg {
		if _, err := c.ChatCancel(ctx); err != nil {
			pilog.Debug("chat.cancel: %v", err)
		}
		return cancelDoneMsg{}
	}
}

func (m *Model) refreshTokens() tea.Cmd {
	if m.client == nil || m.tokens.TotalTokens > 0 {
		return nil
	}
	c, ctx := m.client, m.ctx
	return func() tea.Msg {
		t, err := c.TokensGet(ctx)
		if err != nil {
			return nil
		}
		return tokensMsg{tokens: t}
	}
}

func (m *Model) addEntry(r role, content string) {
	m.entries = append(m.entries, entry{role: r, content: content, at: time.Now()})
}

func (m *Model) addSystem(content string) { m.addEntry(roleSystem, content) }

// setStatus shows a transient status line for a few seconds.
func (m *Model) setStatus(s string) tea.Cmd {
	m.statusSeq++
	m.status = s
	seq := m.statusSeq
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg { return statusClearMsg{seq: seq} })
}

// View renders the transcript, suggestions, input line, and footer.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var top strings.Builder
	top.WriteString(m.styles.Title.Render("openagent"))
	if m.deps.Version != "" {
		top.WriteString(m.styles.Hint.Render(" " + m.deps.Version))
	}
	if m.online && m.deps.ServerVersion != "" {
		top.WriteString(m.styles.Hint.Render(" · server " + m.deps.ServerVersion))
	}
	if m.status != "" {
		top.WriteString("  " + m.styles.Status.Render(m.status))
	}

	var bottom []string
	for i, s := range suggestCommands(string(m.input)) {
		if i == 5 {
			break
		}
		line := fmt.Sprintf("  /%-9s %s", s.name, s.desc)
		if i == 0 {
			line = m.styles.Selected.Render(line)
		} else {
			line = m.styles.Hint.Render(line)
		}
		bottom = append(bottom, line)
	}
	prompt := m.styles.Prompt.Render("❯ ") + string(m.input)
	switch {
	case m.stream != nil:
		prompt = m.styles.Hint.Render("… streaming (esc to cancel)")
	case m.cancelling:
		prompt = m.styles.Hint.Render("(cancelling) ") + prompt
	}
	bottom = append(bottom, prompt, m.renderFooter())

	avail := m.height - 1 - len(bottom)
	body := m.renderTranscript()
	if avail > 0 && len(body) > avail {
		body = body[len(body)-avail:]
	}

	lines := append([]string{top.String()}, body...)
	lines = append(lines, bottom...)
	return strings.Join(lines, "\n")
}

func (m *Model) renderTranscript() []string {
	var lines []string
	wrap := max(m.width-4, 20)
	for _, e := range m.entries {
		var text string
		switch e.role {
		case roleUser:
			text = m.styles.User.Render("> ") + e.content
		case roleAssistant:
			text = m.md.Render(e.content, wrap)
		case roleError:
			text = m.styles.Error.Render(e.content)
		default:
			text = m.styles.System.Render(e.content)
		}
		lines = append(lines, strings.Split(text, "\n")...)
		lines = append(lines, "")
	}
	return lines
}

func (m *Model) renderFooter() string {
	info := footerInfo{
		project:  filepath.Base(m.cwd),
		model:    m.model,
		online:   m.online,
		ragCount: m.ragCount,
		tokens:   m.tokens,
	}
	style := m.styles.Offline
	if m.online {
		style = m.styles.FooterLeft
	}
	return style.Render(renderFooter(info, m.width))
}
