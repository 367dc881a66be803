// ABOUTME: Headless print mode: one streamed chat turn written as text, JSON, or stream-JSON
// ABOUTME: Drains the backend stream with a blocking Next loop and clears the slot when done

package print

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mauromedda/openagent-go/internal/backend"
)

// Config configures headless execution.
type Config struct {
	OutputFormat string // "text" (default), "json", "stream-json"
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
}

// Chat is the part of the backend client print mode needs.
type Chat interface {
	ChatSendStream(ctx context.Context, message string) (*backend.Stream, error)
	ClearStream()
}

// Run sends prompt and writes the streamed reply to stdout.
func Run(ctx context.Context, chat Chat, prompt string) error {
	return RunWithConfig(ctx, Config{OutputFormat: "text"}, chat, prompt)
}

// RunWithConfig sends prompt (read from stdin when empty) and formats the reply.
func RunWithConfig(ctx context.Context, cfg Config, chat Chat, prompt string) error {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}

	if prompt == "" {
		data, err := io.ReadAll(cfg.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return errors.New("empty prompt")
	}

	f := newFormatter(cfg.OutputFormat, cfg.Stdout, cfg.Stderr)
	f.start()

	err := streamTurn(ctx, chat, prompt, f)
	if err != nil {
		f.err(err)
	}
	f.end()
	return err
}

func streamTurn(ctx context.Context, chat Chat, prompt string, f formatter) error {
	stream, err := chat.ChatSendStream(ctx, prompt)
	if err != nil {
		return fmt.Errorf("sending prompt: %w", err)
	}
	defer chat.ClearStream()

	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch ev.Kind {
		case backend.EventChunk:
			f.text(ev.Text)
		case backend.EventDone:
			f.done(ev.Tokens)
		}
	}
}

// formatter abstracts output formatting.
type formatter interface {
	start()
	text(s string)
	done(tokens *backend.TokenStats)
	err(e error)
	end()
}

func newFormatter(format string, out, errOut io.Writer) formatter {
	switch format {
	case "json":
		return &jsonFormatter{out: out}
	case "stream-json":
		return &streamJSONFormatter{out: out}
	default:
		return &textFormatter{out: out, errOut: errOut}
	}
}

// textFormatter writes plain text to stdout and errors to stderr.
type textFormatter struct {
	out, errOut io.Writer
}

func (f *textFormatter) start() {}
func (f *textFormatter) text(s string) { fmt.Fprint(f.out, s) }
func (f *textFormatter) done(_ *backend.TokenStats) {}
func (f *textFormatter) err(e error) { fmt.Fprintf(f.errOut, "error: %v\n", e) }
func (f *textFormatter) end() { fmt.Fprintln(f.out) }

// jsonFormatter collects all output and writes a single JSON object at the end.
type jsonFormatter struct {
	out     io.Writer
	textBuf strings.Builder
	tokens  *backend.TokenStats
	errors  []string
}

type jsonOutput struct {
	Text   string              `json:"text"`
	Tokens *backend.TokenStats `json:"tokens,omitempty"`
	Errors []string            `json:"errors,omitempty"`
}

func (f *jsonFormatter) start() {}
func (f *jsonFormatter) text(s string) { f.textBuf.WriteString(s) }
func (f *jsonFormatter) done(tokens *backend.TokenStats) { f.tokens = tokens }
func (f *jsonFormatter) err(e error) { f.errors = append(f.errors, e.Error()) }
func (f *jsonFormatter) end() {
	out := jsonOutput{
		Text:   f.textBuf.String(),
		Tokens: f.tokens,
		Errors: f.errors,
	}
	data, _ := json.Marshal(out)
	fmt.Fprintln(f.out, string(data))
}

// streamJSONFormatter outputs one JSON line per event.
type streamJSONFormatter struct {
	out io.Writer
}

type streamEvent struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Tokens *backend.TokenStats `json:"tokens,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func (f *streamJSONFormatter) start() { f.write(streamEvent{Type: "start"}) }

func (f *streamJSONFormatter) text(s string) { f.write(streamEvent{Type: "text", Text: s}) }

func (f *streamJSONFormatter) done(tokens *backend.TokenStats) {
	f.write(streamEvent{Type: "done", Tokens: tokens})
}

func (f *streamJSONFormatter) err(e error) { f.write(streamEvent{Type: "error", Error: e.Error()}) }

func (f *streamJSONFormatter) end() { f.write(streamEvent{Type: "end"}) }

func (f *streamJSONFormatter) write(evt streamEvent) {
	data, _ := json.Marshal(evt)
	fmt.Fprintln(f.out, string(data))
}
