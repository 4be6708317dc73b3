// Package engine defines the retrieval index and generation engine
// boundaries. Neither collaborator is trusted with authorization: the
// index may rank across cases and the generator may cite anything it
// retrieved, so callers always validate what comes back.
package engine

import (
	"context"

	"github.com/casescope/hub/internal/model"
)

// SearchResult is one scored document from the retrieval index.
type SearchResult struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// SearchIndex is the vector/full-text retrieval service.
type SearchIndex interface {
	// Search runs query with an optional pre-filter expression. The
	// filter is advisory from the caller's point of view: results are
	// still re-checked downstream.
	Search(ctx context.Context, query, filter string, topK int) ([]SearchResult, error)
}

// RunResult is one generation round-trip: free text plus the source
// annotations the engine claims it drew from.
type RunResult struct {
	Text        string
	Annotations []model.Annotation
}

// Generator is the conversational engine. Threads hold server-side
// message history keyed by an engine-assigned id.
type Generator interface {
	CreateThread(ctx context.Context) (string, error)
	DeleteThread(ctx context.Context, threadID string) error
	// Run appends message to the thread and generates a reply. filter is
	// passed through to retrieval as a hard pre-filter; instructions are
	// prepended to the generation request. Returns model.ErrEngineTimeout
	// when the run exceeds its polling ceiling and model.ErrEngineFailed
	// on a terminal engine error.
	Run(ctx context.Context, threadID, message, filter, instructions string) (*RunResult, error)
}
