// ABOUTME: Typed method layer over the raw connection: chat, session, tokens, tools, rag, codebase, model
// ABOUTME: Read-only lookups are cached briefly with ttlcache; mutators invalidate the cache

package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/mauromedda/openagent-go/internal/jsonrpc"
)

// DefaultCacheTTL is how long read-only lookups are served from cache.
const DefaultCacheTTL = 2 * time.Second

const (
	defaultSessionLimit = 20
	defaultRagResults   = 5
)

// Method names understood by the backend server.
const (
	MethodChatSend        = "chat.send"
	MethodChatCancel      = "chat.cancel"
	MethodSessionCreate   = "session.create"
	MethodSessionLoad     = "session.load"
	MethodSessionList     = "session.list"
	MethodSessionDelete   = "session.delete"
	MethodTokensGet       = "tokens.get"
	MethodTokensSetBudget = "tokens.set_budget"
	MethodToolsList       = "tools.list"
	MethodToolsCall       = "tools.call"
	MethodRagSearch       = "rag.search"
	MethodRagIngest       = "rag.ingest"
	MethodRagStatus       = "rag.status"
	MethodRagEmbeddings   = "rag.embeddings"
	MethodCodebaseInit    = "codebase.init"
	MethodModelGet        = "model.get"
	MethodModelList       = "model.list"
	MethodModelSet        = "model.set"
)

// Caller is the raw connection the typed layer needs. *Backend implements it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	CallStreaming(ctx context.Context, method string, params any) (*Stream, error)
	ClearStream()
}

var _ Caller = (*Backend)(nil)

// Client exposes the backend's methods with typed params and results.
type Client struct {
	caller Caller
	cache  *ttlcache.Cache[string, json.RawMessage]
}

// NewClient wraps caller. A cacheTTL of zero or less disables caching.
func NewClient(caller Caller, cacheTTL time.Duration) *Client {
	c := &Client{caller: caller}
	if cacheTTL > 0 {
		c.cache = ttlcache.New[string, json.RawMessage](
			ttlcache.WithTTL[string, json.RawMessage](cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, json.RawMessage](),
		)
		go c.cache.Start()
	}
	return c
}

// Close stops the cache expiration loop.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Stop()
	}
}

// Invalidate drops every cached lookup.
func (c *Client) Invalidate() {
	if c.cache != nil {
		c.cache.DeleteAll()
	}
}

// call sends method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	raw, err := c.caller.Call(ctx, method, params)
	if err != nil {
		return err
	}
	return decodeResult(method, raw, out)
}

// cachedCall serves a parameterless lookup from cache when fresh.
func (c *Client) cachedCall(ctx context.Context, method string, out any) error {
	if c.cache != nil {
		if item := c.cache.Get(method); item != nil {
			return decodeResult(method, item.Value(), out)
		}
	}
	raw, err := c.caller.Call(ctx, method, nil)
	if err != nil {
		return err
	}
	if err := decodeResult(method, raw, out); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Set(method, raw, ttlcache.DefaultTTL)
	}
	return nil
}

func decodeResult(method string, raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return parseError(method+" result", err)
	}
	return nil
}

// appError turns an application-level {"error": "..."} result into an RPC error.
func appError(msg string) error {
	if msg == "" {
		return nil
	}
	return rpcError(jsonrpc.CodeInternal, msg, nil)
}

// ChatSend sends a message and waits for the complete reply.
func (c *Client) ChatSend(ctx context.Context, message string) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.call(ctx, MethodChatSend, map[string]any{"message": message}, &resp); err != nil {
		return nil, err
	}
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatSendStream sends a message and returns the stream carrying the reply.
func (c *Client) ChatSendStream(ctx context.Context, message string) (*Stream, error) {
	return c.caller.CallStreaming(ctx, MethodChatSend, map[string]any{"message": message, "stream": true})
}

// ClearStream releases the stream slot after a streamed reply.
func (c *Client) ClearStream() { c.caller.ClearStream() }

// ChatCancel asks the backend to abandon the in-flight chat. It reports
// whether anything was cancelled.
func (c *Client) ChatCancel(ctx context.Context) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.call(ctx, MethodChatCancel, nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

type sessionResult struct {
	Session
	Error string `json:"error,omitempty"`
}

func (c *Client) session(ctx context.Context, method string, params any) (*Session, error) {
	var resp sessionResult
	if err := c.call(ctx, method, params, &resp); err != nil {
		return nil, err
	}
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// SessionCreate starts a new session. codebasePath may be empty.
func (c *Client) SessionCreate(ctx context.Context, name, codebasePath string) (*Session, error) {
	params := map[string]any{"name": name}
	if codebasePath != "" {
		params["codebase_path"] = codebasePath
	}
	return c.session(ctx, MethodSessionCreate, params)
}

// SessionLoad makes an existing session current.
func (c *Client) SessionLoad(ctx context.Context, id string) (*Session, error) {
	return c.session(ctx, MethodSessionLoad, map[string]any{"id": id})
}

// SessionList returns the most recent sessions. limit <= 0 means 20.
func (c *Client) SessionList(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	var resp struct {
		Sessions []Session `json:"sessions"`
		Error    string    `json:"error,omitempty"`
	}
	if err := c.call(ctx, MethodSessionList, map[string]any{"limit": limit}, &resp); err != nil {
		return nil, err
	}
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// SessionDelete removes a session and reports whether it existed.
func (c *Client) SessionDelete(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Deleted bool   `json:"deleted"`
		Error   string `json:"error,omitempty"`
	}
	if err := c.call(ctx, MethodSessionDelete, map[string]any{"id": id}, &resp); err != nil {
		return false, err
	}
	if err := appError(resp.Error); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// TokensGet returns usage for the current session.
func (c *Client) TokensGet(ctx context.Context) (*TokenStats, error) {
	var stats TokenStats
	if err := c.call(ctx, MethodTokensGet, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// TokensSetBudget sets the session token budget.
func (c *Client) TokensSetBudget(ctx context.Context, budget uint64) error {
	var resp struct {
		Error string `json:"error,omitempty"`
	}
	if err := c.call(ctx, MethodTokensSetBudget, map[string]any{"budget": budget}, &resp); err != nil {
		return err
	}
	return appError(resp.Error)
}

// ToolsList returns the tools the backend exposes.
func (c *Client) ToolsList(ctx context.Context) ([]ToolInfo, error) {
	var resp struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.call(ctx, MethodToolsList, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// ToolsCall invokes a tool by name.
func (c *Client) ToolsCall(ctx context.Context, name string, args map[string]any) (*ToolCallResponse, error) {
	if args == nil {
		args = map[string]any{}
	}
	var resp ToolCallResponse
	if err := c.call(ctx, MethodToolsCall, map[string]any{"name": name, "arguments": args}, &resp); err != nil {
		return nil, err
	}
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RagSearch runs a semantic search. n <= 0 means 5.
func (c *Client) RagSearch(ctx context.Context, query string, n int) (*RagSearchResponse, error) {
	if n <= 0 {
		n = defaultRagResults
	}
	var resp RagSearchResponse
	if err := c.call(ctx, MethodRagSearch, map[string]any{"query": query, "n_results": n}, &resp); err != nil {
		return nil, err
	}
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RagIngest loads pre-built chunks from a JSON file on the backend's host.
func (c *Client) RagIngest(ctx context.Context, jsonPath string) (*RagIngestResponse, error) {
	var resp RagIngestResponse
	if err := c.call(ctx, MethodRagIngest, map[string]any{"json_path": jsonPath}, &resp); err != nil {
		return nil, err
	}
	c.Invalidate()
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RagStatus reports the state of the RAG store. Cached.
func (c *Client) RagStatus(ctx context.Context) (*RagStatusResponse, error) {
	var resp RagStatusResponse
	if err := c.cachedCall(ctx, MethodRagStatus, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RagEmbeddings returns the 2D projection of the indexed chunks.
func (c *Client) RagEmbeddings(ctx context.Context) (*RagEmbeddingsResponse, error) {
	var resp RagEmbeddingsResponse
	if err := c.call(ctx, MethodRagEmbeddings, nil, &resp); err != nil {
		return nil, err
	}
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CodebaseInit indexes the directory at path. clear drops existing chunks first.
func (c *Client) CodebaseInit(ctx context.Context, path string, clear bool) (*CodebaseInitResponse, error) {
	params := map[string]any{"clear": clear}
	if path != "" {
		params["path"] = norm.NFC.String(path)
	}
	var resp CodebaseInitResponse
	if err := c.call(ctx, MethodCodebaseInit, params, &resp); err != nil {
		return nil, err
	}
	c.Invalidate()
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModelGet returns the active model id. Cached.
func (c *Client) ModelGet(ctx context.Context) (string, error) {
	var resp ModelGetResponse
	if err := c.cachedCall(ctx, MethodModelGet, &resp); err != nil {
		return "", err
	}
	if err := appError(resp.Error); err != nil {
		return "", err
	}
	return resp.Model, nil
}

// ModelList returns the selectable models. Cached.
func (c *Client) ModelList(ctx context.Context) (*ModelListResponse, error) {
	var resp ModelListResponse
	if err := c.cachedCall(ctx, MethodModelList, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModelSet switches the active model.
func (c *Client) ModelSet(ctx context.Context, id string) (*ModelSetResponse, error) {
	var resp ModelSetResponse
	if err := c.call(ctx, MethodModelSet, map[string]any{"model": id}, &resp); err != nil {
		return nil, err
	}
	c.Invalidate()
	if err := appError(resp.Error); err != nil {
		return nil, err
	}
	return &resp, nil
}
