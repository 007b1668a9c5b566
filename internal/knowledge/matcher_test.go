package knowledge

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"aquabot/internal/domain"
)

type scriptedCompleter struct {
	reply string
}

func (c *scriptedCompleter) Complete(context.Context, string, string) (string, error) {
	return c.reply, nil
}

func (c *scriptedCompleter) Chat(context.Context, []domain.ChatMessage, []domain.FunctionDef) (*domain.ChatResult, error) {
	return &domain.ChatResult{Content: c.reply}, nil
}

func partitionFixture(t *testing.T) (*Matcher, *vectorEmbedder) {
	t.Helper()
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"stored":     {1, 0, 0},
		"near":       queryVector(0.95),
		"ambiguous":  queryVector(0.5),
		"unrelated":  queryVector(0.05),
	}}
	engine, _ := testEngine(t, embedder)
	if _, err := engine.Add(context.Background(), domain.KnowledgeEntry{Question: "stored", Answer: "the answer"}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	matcher := NewMatcher(MatcherConfig{
		Engine:        engine,
		Completer:     &scriptedCompleter{reply: "YES"},
		HighThreshold: 0.80,
		LowThreshold:  0.20,
		Logger:        slog.Default(),
	})
	return matcher, embedder
}

func TestMatcherThresholdPartition(t *testing.T) {
	matcher, _ := partitionFixture(t)

	cases := []struct {
		query string
		want  domain.MatchOutcome
	}{
		{"near", domain.MatchDirect},      // 0.95 >= 0.80
		{"ambiguous", domain.MatchValidate}, // 0.20 <= 0.5 < 0.80
		{"unrelated", domain.MatchNone},   // 0.05 < 0.20
	}
	for _, tc := range cases {
		res, err := matcher.Match(context.Background(), tc.query)
		if err != nil {
			t.Fatalf("match %q: %v", tc.query, err)
		}
		if res.Outcome != tc.want {
			t.Errorf("match %q = %v, want %v", tc.query, res.Outcome, tc.want)
		}
		if tc.want != domain.MatchNone && res.Best == nil {
			t.Errorf("match %q returned no best hit", tc.query)
		}
	}
}

func TestMatcherEmptyIndex(t *testing.T) {
	engine, _ := testEngine(t, &vectorEmbedder{})
	matcher := NewMatcher(MatcherConfig{
		Engine: engine, Completer: &scriptedCompleter{}, Logger: slog.Default(),
	})
	res, err := matcher.Match(context.Background(), "anything")
	if err != nil {
		t.Fatalf("match on empty index: %v", err)
	}
	if res.Outcome != domain.MatchNone || res.Best != nil {
		t.Errorf("empty index match = %+v, want none", res)
	}
}

func TestMatcherTieBreak(t *testing.T) {
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"low priority":  {1, 0, 0},
		"high priority": {1, 0, 0},
		"query":         {1, 0, 0},
	}}
	engine, st := testEngine(t, embedder)
	now := time.Now()
	for _, e := range []domain.KnowledgeEntry{
		{ID: "old", Question: "low priority", Answer: "old answer", Priority: 1, CreatedAt: now.Add(-time.Hour)},
		{ID: "new", Question: "high priority", Answer: "preferred answer", Priority: 5, CreatedAt: now},
	} {
		if err := st.InsertKnowledgeEntry(context.Background(), e, embedder.vectors[e.Question]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	matcher := NewMatcher(MatcherConfig{
		Engine: engine, Completer: &scriptedCompleter{}, Logger: slog.Default(),
	})
	res, err := matcher.Match(context.Background(), "query")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.Best == nil || res.Best.Entry.ID != "new" {
		t.Errorf("tie broke to %+v, want the higher-priority entry", res.Best)
	}
}

func TestValidateVerdictParsing(t *testing.T) {
	engine, _ := testEngine(t, &vectorEmbedder{})
	hit := domain.KnowledgeSearchResult{Entry: domain.KnowledgeEntry{Question: "q", Answer: "a"}}

	cases := []struct {
		reply string
		want  bool
	}{
		{"YES", true},
		{"yes.", true},
		{"  Yes ", true},
		{"NO", false},
		{"not sure", false},
		{"", false},
	}
	for _, tc := range cases {
		matcher := NewMatcher(MatcherConfig{
			Engine: engine, Completer: &scriptedCompleter{reply: tc.reply}, Logger: slog.Default(),
		})
		got, err := matcher.Validate(context.Background(), "q", hit)
		if err != nil {
			t.Fatalf("validate with reply %q: %v", tc.reply, err)
		}
		if got != tc.want {
			t.Errorf("Validate with reply %q = %v, want %v", tc.reply, got, tc.want)
		}
	}
}
