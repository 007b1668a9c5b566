// Package knowledge manages the Q&A knowledge base: ingestion with duplicate
// checking, embedding-based semantic search, and CSV import/export.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"aquabot/internal/domain"
	"aquabot/internal/store"
)

// Storer is the persistence the engine needs from the durable store.
type Storer interface {
	InsertKnowledgeEntry(ctx context.Context, e domain.KnowledgeEntry, embedding []float32) error
	DeleteKnowledgeEntry(ctx context.Context, id string) error
	AllKnowledgeVectors(ctx context.Context) ([]store.KnowledgeVector, error)
	ListKnowledgeEntries(ctx context.Context) ([]domain.KnowledgeEntry, error)
	CountKnowledgeEntries(ctx context.Context) (int, error)
	CachedEmbedding(ctx context.Context, textHash string) ([]float32, error)
	CacheEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// Engine is the knowledge base: Q&A pairs with question embeddings.
type Engine struct {
	store    Storer
	embedder domain.Embedder
	searchK  int
	dupThreshold float64
	logger   *slog.Logger
}

type EngineConfig struct {
	Store              Storer
	Embedder           domain.Embedder
	SearchK            int
	DuplicateThreshold float64
	Logger             *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.SearchK <= 0 {
		cfg.SearchK = 3
	}
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = 0.85
	}
	return &Engine{
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		searchK:      cfg.SearchK,
		dupThreshold: cfg.DuplicateThreshold,
		logger:       cfg.Logger,
	}
}

// AddResult reports the outcome of one ingestion attempt.
type AddResult struct {
	ID        string                 `json:"id,omitempty"`
	Added     bool                   `json:"added"`
	Duplicate *domain.DuplicateCheck `json:"duplicate,omitempty"`
}

// Add ingests one Q&A pair, rejecting near-duplicate questions.
func (e *Engine) Add(ctx context.Context, entry domain.KnowledgeEntry) (*AddResult, error) {
	entry.Question = strings.TrimSpace(entry.Question)
	entry.Answer = strings.TrimSpace(entry.Answer)
	if entry.Question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if entry.Answer == "" {
		return nil, fmt.Errorf("answer cannot be empty")
	}

	dup, err := e.CheckDuplicate(ctx, entry.Question, e.dupThreshold)
	if err != nil {
		return nil, err
	}
	if dup.IsDuplicate {
		e.logger.Info("skipping duplicate question",
			"question", entry.Question, "matched", dup.Matched.Question, "similarity", dup.Similarity)
		return &AddResult{Added: false, Duplicate: dup}, nil
	}

	embedding, err := e.embed(ctx, entry.Question)
	if err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Language == "" {
		entry.Language = "ar"
	}
	if err := e.store.InsertKnowledgeEntry(ctx, entry, embedding); err != nil {
		return nil, err
	}

	e.logger.Info("knowledge entry added", "id", entry.ID, "category", entry.Category)
	return &AddResult{ID: entry.ID, Added: true}, nil
}

// AddBulk ingests many pairs, counting additions and skipped duplicates.
func (e *Engine) AddBulk(ctx context.Context, entries []domain.KnowledgeEntry) (added, skipped int, err error) {
	for _, entry := range entries {
		res, addErr := e.Add(ctx, entry)
		if addErr != nil {
			return added, skipped, addErr
		}
		if res.Added {
			added++
		} else {
			skipped++
		}
	}
	return added, skipped, nil
}

// Search returns the k nearest Q&A entries by question similarity, best
// first. An empty knowledge base yields an empty slice, never an error.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]domain.KnowledgeSearchResult, error) {
	if k <= 0 {
		k = e.searchK
	}
	vectors, err := e.store.AllKnowledgeVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge vectors: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	queryVec, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]domain.KnowledgeSearchResult, 0, len(vectors))
	for _, v := range vectors {
		results = append(results, domain.KnowledgeSearchResult{
			Entry:      v.Entry,
			Similarity: Similarity(queryVec, v.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// CheckDuplicate reports whether a candidate question is already covered.
func (e *Engine) CheckDuplicate(ctx context.Context, question string, threshold float64) (*domain.DuplicateCheck, error) {
	results, err := e.Search(ctx, question, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &domain.DuplicateCheck{}, nil
	}
	best := results[0]
	check := &domain.DuplicateCheck{Similarity: best.Similarity}
	if best.Similarity >= threshold {
		check.IsDuplicate = true
		entry := best.Entry
		check.Matched = &entry
	}
	return check, nil
}

// Count returns the number of stored entries.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.CountKnowledgeEntries(ctx)
}

// List returns all stored entries.
func (e *Engine) List(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	return e.store.ListKnowledgeEntries(ctx)
}

// Delete removes an entry by id.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.DeleteKnowledgeEntry(ctx, id)
}

// embed returns the embedding for text, consulting the content-hash cache
// before calling the API.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	hash := hashText(text)
	if cached, err := e.store.CachedEmbedding(ctx, hash); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
	}

	vectors, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	vec := vectors[0]

	if err := e.store.CacheEmbedding(ctx, hash, vec); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(text))))
	return hex.EncodeToString(sum[:])
}

// Similarity computes cosine similarity clamped to [0,1]: 1 means identical
// meaning, 0 unrelated. With normalized embeddings this equals
// 1 - cosine distance, which is the transform the matcher thresholds are
// calibrated against.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
