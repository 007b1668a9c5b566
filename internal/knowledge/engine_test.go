package knowledge

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"testing"

	"aquabot/internal/domain"
	"aquabot/internal/store"
)

// memStorer is an in-memory Storer for engine tests.
type memStorer struct {
	vectors []store.KnowledgeVector
	cache   map[string][]float32
}

func newMemStorer() *memStorer {
	return &memStorer{cache: map[string][]float32{}}
}

func (m *memStorer) InsertKnowledgeEntry(_ context.Context, e domain.KnowledgeEntry, embedding []float32) error {
	m.vectors = append(m.vectors, store.KnowledgeVector{Entry: e, Embedding: embedding})
	return nil
}

func (m *memStorer) DeleteKnowledgeEntry(_ context.Context, id string) error {
	for i, v := range m.vectors {
		if v.Entry.ID == id {
			m.vectors = append(m.vectors[:i], m.vectors[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStorer) AllKnowledgeVectors(context.Context) ([]store.KnowledgeVector, error) {
	return m.vectors, nil
}

func (m *memStorer) ListKnowledgeEntries(context.Context) ([]domain.KnowledgeEntry, error) {
	out := make([]domain.KnowledgeEntry, len(m.vectors))
	for i, v := range m.vectors {
		out[i] = v.Entry
	}
	return out, nil
}

func (m *memStorer) CountKnowledgeEntries(context.Context) (int, error) {
	return len(m.vectors), nil
}

func (m *memStorer) CachedEmbedding(_ context.Context, hash string) ([]float32, error) {
	return m.cache[hash], nil
}

func (m *memStorer) CacheEmbedding(_ context.Context, hash string, embedding []float32) error {
	m.cache[hash] = embedding
	return nil
}

// vectorEmbedder maps exact texts to fixed vectors; unknown texts get a
// vector orthogonal to everything else.
type vectorEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (e *vectorEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

// queryVector builds a unit vector whose cosine similarity to (1,0,0) is sim.
func queryVector(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("%s: Similarity = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func testEngine(t *testing.T, embedder *vectorEmbedder) (*Engine, *memStorer) {
	t.Helper()
	st := newMemStorer()
	engine := NewEngine(EngineConfig{
		Store: st, Embedder: embedder, Logger: slog.Default(),
	})
	return engine, st
}

func TestAddAndSearch(t *testing.T) {
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"كم يستغرق التوصيل؟": {1, 0, 0},
		"متى يوصل طلبي؟":     queryVector(0.9),
	}}
	engine, _ := testEngine(t, embedder)
	ctx := context.Background()

	res, err := engine.Add(ctx, domain.KnowledgeEntry{
		Question: "كم يستغرق التوصيل؟",
		Answer:   "من 24 إلى 48 ساعة.",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !res.Added || res.ID == "" {
		t.Fatalf("add result = %+v, want added with generated id", res)
	}

	hits, err := engine.Search(ctx, "متى يوصل طلبي؟", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if math.Abs(hits[0].Similarity-0.9) > 1e-3 {
		t.Errorf("similarity = %v, want ~0.9", hits[0].Similarity)
	}
}

func TestAddRejectsNearDuplicate(t *testing.T) {
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"كم يستغرق التوصيل؟":   {1, 0, 0},
		"كم ياخذ وقت التوصيل؟": queryVector(0.9), // above the 0.85 default
	}}
	engine, st := testEngine(t, embedder)
	ctx := context.Background()

	if _, err := engine.Add(ctx, domain.KnowledgeEntry{Question: "كم يستغرق التوصيل؟", Answer: "يومين."}); err != nil {
		t.Fatalf("add original: %v", err)
	}
	res, err := engine.Add(ctx, domain.KnowledgeEntry{Question: "كم ياخذ وقت التوصيل؟", Answer: "يومين."})
	if err != nil {
		t.Fatalf("add duplicate: %v", err)
	}
	if res.Added {
		t.Error("near-duplicate question was added")
	}
	if res.Duplicate == nil || !res.Duplicate.IsDuplicate {
		t.Fatalf("duplicate info missing: %+v", res)
	}
	if n, _ := st.CountKnowledgeEntries(ctx); n != 1 {
		t.Errorf("store has %d entries, want 1", n)
	}
}

func TestAddRejectsEmptyFields(t *testing.T) {
	engine, _ := testEngine(t, &vectorEmbedder{})
	for _, entry := range []domain.KnowledgeEntry{
		{Question: "", Answer: "a"},
		{Question: "q", Answer: "   "},
	} {
		if _, err := engine.Add(context.Background(), entry); err == nil {
			t.Errorf("Add(%+v) succeeded, want error", entry)
		}
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	engine, _ := testEngine(t, &vectorEmbedder{})
	hits, err := engine.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("search on empty index errored: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from an empty index", len(hits))
	}
}

func TestEmbeddingCacheAvoidsRecompute(t *testing.T) {
	embedder := &vectorEmbedder{vectors: map[string][]float32{"سؤال": {1, 0, 0}}}
	engine, _ := testEngine(t, embedder)
	ctx := context.Background()

	if _, err := engine.Add(ctx, domain.KnowledgeEntry{Question: "سؤال", Answer: "جواب"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	calls := embedder.calls

	// Searching for the identical text must hit the hash cache.
	if _, err := engine.Search(ctx, "سؤال", 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	if embedder.calls != calls {
		t.Errorf("embedder called %d more times, want cache hit", embedder.calls-calls)
	}
}

func TestImportCSV(t *testing.T) {
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"q1": {1, 0, 0},
		"q2": {0, 1, 0},
	}}
	engine, st := testEngine(t, embedder)

	csvData := strings.Join([]string{
		"question,answer,category,language,priority",
		"q1,a1,delivery,ar,2",
		"q2,a2,orders,en,1",
		",missing question,x,ar,0",
	}, "\n")

	added, skipped, err := engine.ImportCSV(context.Background(), strings.NewReader(csvData), "test")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if added != 2 || skipped != 1 {
		t.Errorf("added=%d skipped=%d, want 2 and 1", added, skipped)
	}

	entries, _ := st.ListKnowledgeEntries(context.Background())
	for _, e := range entries {
		if e.Source != "test" {
			t.Errorf("entry %q source = %q, want test", e.Question, e.Source)
		}
	}
	if entries[0].Priority != 2 || entries[0].Category != "delivery" {
		t.Errorf("column mapping broken: %+v", entries[0])
	}
}

func TestImportCSVMissingColumns(t *testing.T) {
	engine, _ := testEngine(t, &vectorEmbedder{})
	_, _, err := engine.ImportCSV(context.Background(), strings.NewReader("question,category\nq,x"), "test")
	if err == nil || !strings.Contains(err.Error(), "answer") {
		t.Fatalf("import without answer column: err = %v, want missing-column error", err)
	}
}

func TestExportCSV(t *testing.T) {
	embedder := &vectorEmbedder{vectors: map[string][]float32{"q1": {1, 0, 0}}}
	engine, _ := testEngine(t, embedder)
	ctx := context.Background()

	if _, err := engine.Add(ctx, domain.KnowledgeEntry{Question: "q1", Answer: "a1", Category: "c", Language: "ar", Priority: 3}); err != nil {
		t.Fatalf("add: %v", err)
	}

	var sb strings.Builder
	n, err := engine.ExportCSV(ctx, &sb)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 1 {
		t.Errorf("exported %d entries, want 1", n)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "question,answer,category,language,priority") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "q1,a1,c,ar,3") {
		t.Errorf("missing row: %q", out)
	}
}
