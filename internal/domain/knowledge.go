package domain

import (
	"context"
	"time"
)

// KnowledgeEntry is one question→answer pair in the knowledge base.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category,omitempty"`
	Language  string    `json:"language,omitempty"`
	Source    string    `json:"source,omitempty"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeSearchResult is one nearest-neighbor hit.
type KnowledgeSearchResult struct {
	Entry      KnowledgeEntry `json:"entry"`
	Similarity float64        `json:"similarity"` // [0,1], 1 = identical meaning
}

// MatchOutcome is the matcher's routing verdict for a query.
type MatchOutcome string

const (
	MatchDirect   MatchOutcome = "direct"   // similarity >= high threshold
	MatchValidate MatchOutcome = "validate" // ambiguous band, needs LLM confirmation
	MatchNone     MatchOutcome = "none"     // below low threshold, skip knowledge base
)

// MatchResult is the outcome of matching a user turn against the knowledge base.
type MatchResult struct {
	Outcome    MatchOutcome
	Best       *KnowledgeSearchResult
	Similarity float64
	Results    []KnowledgeSearchResult
}

// Searcher is the semantic nearest-neighbor capability over the knowledge base.
// An empty index yields an empty slice, not an error.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]KnowledgeSearchResult, error)
}

// DuplicateCheck is the result of checking a candidate question against the
// existing knowledge base before ingestion.
type DuplicateCheck struct {
	IsDuplicate bool           `json:"is_duplicate"`
	Matched     *KnowledgeEntry `json:"matched,omitempty"`
	Similarity  float64        `json:"similarity"`
}
