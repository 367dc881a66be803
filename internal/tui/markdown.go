// ABOUTME: Markdown renderer wrapper around glamour for assistant replies
// ABOUTME: Caches rendered results keyed by content hash + width; reuses one renderer per width

package tui

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer wraps glamour to render markdown with caching.
// Not safe for concurrent use; the bubbletea loop is its only caller.
type MarkdownRenderer struct {
	style     string
	cache     map[string]string // "hash:width" -> rendered
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer using a fixed glamour style
// ("dark", "light", "notty", ...). An empty style detects from the terminal.
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	return &MarkdownRenderer{
		style:     style,
		cache:     make(map[string]string),
		renderers: make(map[int]*glamour.TermRenderer),
	}
}

// Render returns the terminal-styled rendering of the given markdown.
func (r *MarkdownRenderer) Render(md string, width int) string {
	if md == "" {
		return ""
	}

	key := cacheKey(md, width)
	if cached, ok := r.cache[key]; ok {
		return cached
	}

	renderer, err := r.renderer(width)
	if err != nil {
		return md
	}

	rendered, err := renderer.Render(md)
	if err != nil {
		return md
	}

	// Trim the margins glamour adds
	rendered = strings.Trim(rendered, "\n ")

	r.cache[key] = rendered
	return rendered
}

// Forget drops cached renderings. Streaming replies change on every chunk,
// so the view calls this once a reply completes.
func (r *MarkdownRenderer) Forget() {
	clear(r.cache)
}

func (r *MarkdownRenderer) renderer(width int) (*glamour.TermRenderer, error) {
	if tr, ok := r.renderers[width]; ok {
		return tr, nil
	}
	styleOpt := glamour.WithAutoStyle()
	if r.style != "" {
		styleOpt = glamour.WithStandardStyle(r.style)
	}
	tr, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, err
	}
	r.renderers[width] = tr
	return tr, nil
}

// cacheKey produces a string key from content hash and width.
func cacheKey(content string, width int) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x:%d", h[:8], width)
}
