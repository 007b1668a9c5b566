package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"aquabot/internal/domain"
)

// Matcher partitions search hits into direct-answer, needs-validation, and
// no-match bands using two similarity thresholds, and runs the LLM
// confirmation step for the middle band.
type Matcher struct {
	engine    *Engine
	completer domain.Completer
	high      float64
	low       float64
	logger    *slog.Logger
}

type MatcherConfig struct {
	Engine        *Engine
	Completer     domain.Completer
	HighThreshold float64
	LowThreshold  float64
	Logger        *slog.Logger
}

func NewMatcher(cfg MatcherConfig) *Matcher {
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = 0.80
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = 0.20
	}
	return &Matcher{
		engine:    cfg.Engine,
		completer: cfg.Completer,
		high:      cfg.HighThreshold,
		low:       cfg.LowThreshold,
		logger:    cfg.Logger,
	}
}

// Match searches the knowledge base and grades the best hit. Ties at equal
// similarity break by entry priority, then by recency.
func (m *Matcher) Match(ctx context.Context, query string) (*domain.MatchResult, error) {
	results, err := m.engine.Search(ctx, query, 3)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	if len(results) == 0 {
		return &domain.MatchResult{Outcome: domain.MatchNone}, nil
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.Similarity != best.Similarity {
			break
		}
		if r.Entry.Priority > best.Entry.Priority ||
			(r.Entry.Priority == best.Entry.Priority && r.Entry.CreatedAt.After(best.Entry.CreatedAt)) {
			best = r
		}
	}

	res := &domain.MatchResult{Best: &best, Similarity: best.Similarity, Results: results}
	switch {
	case best.Similarity >= m.high:
		res.Outcome = domain.MatchDirect
	case best.Similarity >= m.low:
		res.Outcome = domain.MatchValidate
	default:
		res.Outcome = domain.MatchNone
		res.Best = nil
	}
	m.logger.Debug("knowledge match", "similarity", best.Similarity, "outcome", res.Outcome)
	return res, nil
}

// Validate asks the model whether a middle-band answer actually addresses
// the user's question. A conservative "no" is returned on any parse doubt.
func (m *Matcher) Validate(ctx context.Context, query string, hit domain.KnowledgeSearchResult) (bool, error) {
	system := "You verify whether a stored answer addresses a customer's question. " +
		"Reply with exactly YES or NO, nothing else."
	user := fmt.Sprintf("Customer question: %s\n\nStored question: %s\nStored answer: %s\n\nDoes the stored answer address the customer's question?",
		query, hit.Entry.Question, hit.Entry.Answer)

	reply, err := m.completer.Complete(ctx, system, user)
	if err != nil {
		return false, fmt.Errorf("validate match: %w", err)
	}
	verdict := strings.ToUpper(strings.TrimSpace(reply))
	return strings.HasPrefix(verdict, "YES"), nil
}

// Compose writes a reply to the user's question grounded on a confirmed
// knowledge hit, in the user's language. Callers fall back to the stored
// answer verbatim on error.
func (m *Matcher) Compose(ctx context.Context, query string, hit domain.KnowledgeSearchResult) (string, error) {
	system := "You are a customer support assistant for a water delivery service. " +
		"Answer the customer's question using ONLY the reference answer below. " +
		"Reply in the same language the customer used, concisely and politely. " +
		"Do not invent information beyond the reference."
	user := fmt.Sprintf("Customer question: %s\n\nReference answer: %s", query, hit.Entry.Answer)

	reply, err := m.completer.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("compose grounded reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
