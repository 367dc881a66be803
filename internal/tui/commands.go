// ABOUTME: Slash commands: table, parsing, fuzzy suggestions, and result formatting
// ABOUTME: Remote commands run as tea.Cmds against the backend client and report commandResultMsg

package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/mauromedda/openagent-go/internal/backend"
)

type commandSpec struct {
	name string // without the leading slash
	desc string
}

var commands = []commandSpec{
	{"help", "Show available commands"},
	{"clear", "Clear chat history"},
	{"init", "Index current codebase (--clear to rebuild)"},
	{"rag", "Show RAG status"},
	{"search", "Search codebase (RAG)"},
	{"ingest", "Ingest chunks from a JSON file"},
	{"session", "Session info"},
	{"sessions", "List recent sessions"},
	{"model", "Get/set LLM model"},
	{"budget", "Show or set the token budget"},
	{"tools", "List backend tools"},
	{"copy", "Export chat to file"},
	{"quit", "Exit openagent"},
}

// commandSource adapts the command table to fuzzy.Source.
type commandSource []commandSpec

func (c commandSource) String(i int) string { return c[i].name }
func (c commandSource) Len() int            { return len(c) }

// parseCommand splits "/name args" into its parts.
func parseCommand(input string) (name, args string) {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "/")
	name, args, _ = strings.Cut(input, " ")
	return name, strings.TrimSpace(args)
}

// suggestCommands returns commands matching a partially typed "/name".
// Nothing is suggested once arguments start.
func suggestCommands(input string) []commandSpec {
	if !strings.HasPrefix(input, "/") || strings.Contains(input, " ") {
		return nil
	}
	pattern := input[1:]
	if pattern == "" {
		return commands
	}
	matches := fuzzy.FindFrom(pattern, commandSource(commands))
	out := make([]commandSpec, 0, len(matches))
	for _, m := range matches {
		out = append(out, commands[m.Index])
	}
	return out
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  /%-9s %s\n", c.name, c.desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

const notConnected = "Error: Backend not connected"

// runCommand executes a slash command. Local commands update the model
// directly; remote ones return a tea.Cmd.
func (m *Model) runCommand(input string) tea.Cmd {
	name, args := parseCommand(input)

	switch name {
	case "help":
		m.addSystem(helpText())
		return nil
	case "clear":
		m.entries = nil
		m.md.Forget()
		return m.setStatus("Chat cleared")
	case "session":
		m.addSystem(m.sessionInfo())
		return nil
	case "copy":
		m.addSystem(m.exportChat())
		return nil
	case "quit":
		m.quitting = true
		return tea.Quit
	case "search":
		if args == "" {
			m.addSystem("Usage: /search <query>\n  Example: /search authentication middleware")
			return nil
		}
	case "ingest":
		if args == "" {
			m.addSystem("Usage: /ingest <json_path>\n  Example: /ingest ./specs/codebase.json")
			return nil
		}
	case "init", "rag", "sessions", "model", "budget", "tools":
	default:
		m.addSystem(fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", name))
		return nil
	}

	if m.client == nil {
		m.addSystem(notConnected)
		return nil
	}
	return remoteCommand(m.ctx, m.client, m.cwd, name, args, m.tokens)
}

// remoteCommand builds the tea.Cmd for a backend-backed command.
func remoteCommand(ctx context.Context, c Client, cwd, name, args string, tokens backend.TokenStats) tea.Cmd {
	return func() tea.Msg {
		switch name {
		case "init":
			rebuild := args == "--clear" || args == "-c"
			resp, err := c.CodebaseInit(ctx, cwd, rebuild)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("init failed: %w", err)}
			}
			st, _ := c.RagStatus(ctx)
			return commandResultMsg{text: formatInit(resp), rag: st}

		case "rag":
			st, err := c.RagStatus(ctx)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("rag status: %w", err)}
			}
			return commandResultMsg{text: formatRagStatus(st), rag: st}

		case "search":
			resp, err := c.RagSearch(ctx, args, 5)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("search failed: %w", err)}
			}
			return commandResultMsg{text: formatSearch(resp)}

		case "ingest":
			resp, err := c.RagIngest(ctx, args)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("ingest failed: %w", err)}
			}
			st, _ := c.RagStatus(ctx)
			total := 0
			if st != nil {
				total = st.Count
			}
			return commandResultMsg{
				text: fmt.Sprintf("Ingested %d chunks from %s\nTotal chunks: %d", resp.Ingested, resp.Source, total),
				rag:  st,
			}

		case "sessions":
			list, err := c.SessionList(ctx, 0)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("listing sessions: %w", err)}
			}
			return commandResultMsg{text: formatSessions(list)}

		case "model":
			if args != "" {
				resp, err := c.ModelSet(ctx, args)
				if err != nil {
					return commandResultMsg{err: fmt.Errorf("failed to set model: %w", err)}
				}
				next := orDefault(resp.Model, args)
				return commandResultMsg{
					text:  fmt.Sprintf("Model changed: %s -> %s", orDefault(resp.Previous, "unknown"), next),
					model: next,
				}
			}
			current, err := c.ModelGet(ctx)
			if err != nil {
				current = "unknown"
			}
			list, _ := c.ModelList(ctx)
			return commandResultMsg{text: formatModels(current, list)}

		case "budget":
			if args != "" {
				n, err := strconv.ParseUint(args, 10, 64)
				if err != nil {
					return commandResultMsg{text: "Usage: /budget <tokens>"}
				}
				if err := c.TokensSetBudget(ctx, n); err != nil {
					return commandResultMsg{err: fmt.Errorf("setting budget: %w", err)}
				}
				return commandResultMsg{text: fmt.Sprintf("Token budget set to %d", n)}
			}
			return commandResultMsg{text: formatBudget(tokens)}

		case "tools":
			tools, err := c.ToolsList(ctx)
			if err != nil {
				return commandResultMsg{err: fmt.Errorf("listing tools: %w", err)}
			}
			return commandResultMsg{text: formatTools(tools)}
		}
		return nil
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatInit(resp *backend.CodebaseInitResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Codebase indexed!\n  Chunks: %d\n", resp.Chunks)
	if resp.Stats != nil {
		fmt.Fprintf(&b, "  Files scanned: %d\n  Code units: %d\n", resp.Stats.FilesScanned, resp.Stats.UnitsExtracted)
	}
	if resp.Message != "" {
		fmt.Fprintf(&b, "  %s", resp.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRagStatus(st *backend.RagStatusResponse) string {
	if st == nil || !st.Initialized {
		return "RAG Status:\n  Initialized: No\n  Use /init to index the codebase"
	}
	return fmt.Sprintf("RAG Status:\n  Initialized: Yes\n  Chunks indexed: %d\n  Ready for queries", st.Count)
}

func formatSearch(resp *backend.RagSearchResponse) string {
	if len(resp.Results) == 0 {
		return "No results found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results:\n", resp.Count)
	for i, r := range resp.Results {
		snippet := []rune(r.Content)
		if len(snippet) > 100 {
			snippet = snippet[:100]
		}
		fmt.Fprintf(&b, "\n%d. [%s] %s\n   %s\n   Relevance: %.1f%%",
			i+1, r.Metadata.ChunkType, r.Metadata.Path, string(snippet), r.Relevance*100)
	}
	return b.String()
}

func formatSessions(list []backend.Session) string {
	if len(list) == 0 {
		return "No sessions"
	}
	var b strings.Builder
	b.WriteString("Recent sessions:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "  %s  %s", s.ID, s.Name)
		if s.CodebasePath != "" {
			fmt.Fprintf(&b, "  (%s)", s.CodebasePath)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatModels(current string, list *backend.ModelListResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current model: %s\n\nAvailable models:\n", current)
	if list != nil {
		for _, m := range list.Models {
			marker := ""
			if m.ID == current {
				marker = " *"
			}
			fmt.Fprintf(&b, "  %s - %s%s\n", m.ID, m.Description, marker)
		}
	}
	b.WriteString("\nUsage: /model <model_id>")
	return b.String()
}

func formatBudget(t backend.TokenStats) string {
	if t.Budget == nil {
		return "No budget set. Use /budget <tokens> to set one."
	}
	budget := *t.Budget
	remaining := uint64(0)
	if budget > t.TotalTokens {
		remaining = budget - t.TotalTokens
	}
	pct := 0.0
	if budget > 0 {
		pct = float64(t.TotalTokens) / float64(budget) * 100
	}
	return fmt.Sprintf("Token budget: %d\n  Used: %d (%.1f%%)\n  Remaining: %d", budget, t.TotalTokens, pct, remaining)
}

func formatTools(tools []backend.ToolInfo) string {
	if len(tools) == 0 {
		return "No tools available"
	}
	var b strings.Builder
	b.WriteString("Tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "  %s - %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) sessionInfo() string {
	status := "Offline"
	if m.online {
		status = "Connected"
	}
	sessionID := "-"
	if m.session != nil {
		sessionID = m.session.ID
	}
	return fmt.Sprintf("Session info:\n  ID: %s\n  Project: %s\n  Path: %s\n  Messages: %d\n  Tokens: %d\n  Cost: $%.4f\n  Status: %s\n  RAG: %d chunks",
		sessionID, filepath.Base(m.cwd), m.cwd, len(m.entries), m.tokens.TotalTokens, m.tokens.TotalCost, status, m.ragCount)
}

// exportChat writes the transcript to .openagent-chat.txt in the working directory.
func (m *Model) exportChat() string {
	path := filepath.Join(m.cwd, ".openagent-chat.txt")

	var b strings.Builder
	b.WriteString("# openagent chat export\n")
	fmt.Fprintf(&b, "# Project: %s\n", filepath.Base(m.cwd))
	fmt.Fprintf(&b, "# Exported: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "# Messages: %d\n", len(m.entries))
	fmt.Fprintf(&b, "# Tokens: %d ($%.4f)\n\n---\n\n", m.tokens.TotalTokens, m.tokens.TotalCost)
	for _, e := range m.entries {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n---\n\n", strings.ToUpper(e.role.String()), e.at.Format("15:04:05"), e.content)
	}

	data := b.String()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Sprintf("Export failed: %v", err)
	}
	return fmt.Sprintf("Chat exported to:\n  %s\n\n  %d messages, %d bytes", path, len(m.entries), len(data))
}
