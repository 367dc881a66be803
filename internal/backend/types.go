// ABOUTME: Result shapes returned by backend methods (chat, sessions, tokens, rag, codebase, models)
// ABOUTME: TokenStats also decodes through easyjson since it rides on stream Done events

package backend

import (
	"github.com/mailru/easyjson/jlexer"
)

// TokenStats is the session usage summary.
type TokenStats struct {
	TotalInput       uint64   `json:"total_input"`
	TotalOutput      uint64   `json:"total_output"`
	TotalTokens      uint64   `json:"total_tokens"`
	TotalCost        float64  `json:"total_cost"`
	RequestCount     uint64   `json:"request_count"`
	Budget           *uint64  `json:"budget,omitempty"`
	BudgetRemaining  *int64   `json:"budget_remaining,omitempty"`
	BudgetPercentage *float64 `json:"budget_percentage,omitempty"`
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (t *TokenStats) UnmarshalEasyJSON(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "total_input":
			t.TotalInput = in.Uint64()
		case "total_output":
			t.TotalOutput = in.Uint64()
		case "total_tokens":
			t.TotalTokens = in.Uint64()
		case "total_cost":
			t.TotalCost = in.Float64()
		case "request_count":
			t.RequestCount = in.Uint64()
		case "budget":
			v := in.Uint64()
			t.Budget = &v
		case "budget_remaining":
			v := in.Int64()
			t.BudgetRemaining = &v
		case "budget_percentage":
			v := in.Float64()
			t.BudgetPercentage = &v
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

// ChatResponse is the result of a non-streamed chat.send.
type ChatResponse struct {
	Response string      `json:"response"`
	Tokens   *TokenStats `json:"tokens,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Session describes a stored conversation.
type Session struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CodebasePath string `json:"codebase_path,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastAccessed string `json:"last_accessed"`
}

// RagChunkMetadata describes where a search hit came from.
type RagChunkMetadata struct {
	Path      string   `json:"path"`
	ChunkType string   `json:"type"`
	Language  string   `json:"language"`
	Signature string   `json:"signature"`
	Concepts  []string `json:"concepts"`
}

// RagSearchResult is one hit of rag.search.
type RagSearchResult struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Score     float64          `json:"score"`
	Relevance float64          `json:"relevance"`
	Metadata  RagChunkMetadata `json:"metadata"`
}

// RagSearchResponse is the result of rag.search.
type RagSearchResponse struct {
	Results []RagSearchResult `json:"results"`
	Count   int               `json:"count"`
	Error   string            `json:"error,omitempty"`
}

// RagIngestResponse is the result of rag.ingest.
type RagIngestResponse struct {
	Ingested int    `json:"ingested"`
	Source   string `json:"source,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RagStatusResponse is the result of rag.status.
type RagStatusResponse struct {
	Initialized bool   `json:"initialized"`
	Count       int    `json:"count"`
	DBPath      string `json:"db_path,omitempty"`
	Collection  string `json:"collection,omitempty"`
}

// EmbeddingPoint is a 2D projection of one indexed chunk.
type EmbeddingPoint struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
	Path  string  `json:"path,omitempty"`
}

// RagEmbeddingsResponse is the result of rag.embeddings.
type RagEmbeddingsResponse struct {
	Points []EmbeddingPoint `json:"points"`
	Error  string           `json:"error,omitempty"`
}

// CodebaseInitStats summarizes an indexing run.
type CodebaseInitStats struct {
	FilesScanned    int `json:"files_scanned"`
	UnitsExtracted  int `json:"units_extracted"`
	ChunksGenerated int `json:"chunks_generated"`
}

// CodebaseInitResponse is the result of codebase.init.
type CodebaseInitResponse struct {
	Chunks  int                `json:"chunks"`
	Stats   *CodebaseInitStats `json:"stats,omitempty"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// ModelGetResponse is the result of model.get.
type ModelGetResponse struct {
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
}

// ModelListResponse is the result of model.list.
type ModelListResponse struct {
	Models  []ModelInfo `json:"models"`
	Current string      `json:"current,omitempty"`
}

// ModelSetResponse is the result of model.set.
type ModelSetResponse struct {
	Model    string `json:"model,omitempty"`
	Previous string `json:"previous,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ToolInfo describes a backend tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ToolCallResponse is the result of tools.call.
type ToolCallResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
