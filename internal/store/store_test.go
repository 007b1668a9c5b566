package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"aquabot/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateUser(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u1, err := s.GetOrCreateUser(ctx, "966501234567")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	u2, err := s.GetOrCreateUser(ctx, "966501234567")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u1.ID != u2.ID {
		t.Errorf("same phone produced two users: %d and %d", u1.ID, u2.ID)
	}
}

func TestReplyGuard(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, "966500000001")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	msg, err := s.SaveMessage(ctx, user.ID, "هلا", "wamid.1")
	if err != nil {
		t.Fatalf("save message: %v", err)
	}

	has, err := s.HasReply(ctx, msg.ID)
	if err != nil || has {
		t.Fatalf("HasReply before reply = %v, %v; want false, nil", has, err)
	}
	if err := s.SaveReply(ctx, msg.ID, "هلا!", "ar"); err != nil {
		t.Fatalf("save reply: %v", err)
	}
	has, err = s.HasReply(ctx, msg.ID)
	if err != nil || !has {
		t.Fatalf("HasReply after reply = %v, %v; want true, nil", has, err)
	}
	// Second reply for the same message must be rejected by the unique
	// constraint.
	if err := s.SaveReply(ctx, msg.ID, "duplicate", "ar"); err == nil {
		t.Error("second SaveReply for the same message succeeded, want error")
	}
}

func TestMarkProcessedIdempotence(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.MarkProcessed(ctx, "wamid.dup")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !first {
		t.Error("first MarkProcessed returned false, want true")
	}
	second, err := s.MarkProcessed(ctx, "wamid.dup")
	if err != nil {
		t.Fatalf("mark processed again: %v", err)
	}
	if second {
		t.Error("second MarkProcessed returned true, want false")
	}
}

func TestPauseUpsertExtends(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	pause := domain.ConversationPause{
		ConversationID: "conv-1",
		PhoneNumber:    "966500000002",
		AgentEmail:     "agent@example.com",
		PausedAt:       now,
		ExpiresAt:      now.Add(10 * time.Hour),
	}
	if err := s.UpsertPause(ctx, pause); err != nil {
		t.Fatalf("upsert pause: %v", err)
	}

	// A second agent message slides the expiry forward.
	pause.ExpiresAt = now.Add(20 * time.Hour)
	if err := s.UpsertPause(ctx, pause); err != nil {
		t.Fatalf("extend pause: %v", err)
	}

	got, err := s.GetPause(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get pause: %v", err)
	}
	if got == nil || !got.Active {
		t.Fatalf("expected active pause, got %+v", got)
	}
	if !got.ExpiresAt.Equal(pause.ExpiresAt) {
		t.Errorf("expires_at = %v, want %v", got.ExpiresAt, pause.ExpiresAt)
	}

	if err := s.DeactivatePause(ctx, "conv-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err = s.GetPause(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get pause after deactivate: %v", err)
	}
	if got.Active {
		t.Error("pause still active after deactivate")
	}
}

func TestGetPauseMissing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetPause(context.Background(), "no-such-conversation")
	if err != nil {
		t.Fatalf("get missing pause: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing pause, got %+v", got)
	}
}

func TestSweepExpiredPauses(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, expires := range []time.Time{now.Add(-time.Hour), now.Add(time.Hour)} {
		err := s.UpsertPause(ctx, domain.ConversationPause{
			ConversationID: string(rune('a' + i)),
			PhoneNumber:    "96650000000",
			PausedAt:       now.Add(-2 * time.Hour),
			ExpiresAt:      expires,
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, err := s.SweepExpiredPauses(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d pauses, want 1", n)
	}
}

func TestKnowledgeVectorRoundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := domain.KnowledgeEntry{
		ID:       "k1",
		Question: "كم يستغرق التوصيل؟",
		Answer:   "من 24 إلى 48 ساعة.",
		Category: "delivery",
		Language: "ar",
		Priority: 2,
	}
	embedding := []float32{0.1, -0.5, 0.25, 1}
	if err := s.InsertKnowledgeEntry(ctx, entry, embedding); err != nil {
		t.Fatalf("insert: %v", err)
	}

	vectors, err := s.AllKnowledgeVectors(ctx)
	if err != nil {
		t.Fatalf("load vectors: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	got := vectors[0]
	if got.Entry.Question != entry.Question || got.Entry.Priority != 2 {
		t.Errorf("entry mismatch: %+v", got.Entry)
	}
	if len(got.Embedding) != len(embedding) {
		t.Fatalf("embedding length %d, want %d", len(got.Embedding), len(embedding))
	}
	for i := range embedding {
		if got.Embedding[i] != embedding[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, got.Embedding[i], embedding[i])
		}
	}
}

func TestEmbeddingCache(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	miss, err := s.CachedEmbedding(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("cache miss lookup: %v", err)
	}
	if miss != nil {
		t.Errorf("expected nil on cache miss, got %v", miss)
	}

	vec := []float32{1, 2, 3}
	if err := s.CacheEmbedding(ctx, "deadbeef", vec); err != nil {
		t.Fatalf("cache write: %v", err)
	}
	hit, err := s.CachedEmbedding(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("cache hit lookup: %v", err)
	}
	if len(hit) != 3 || hit[2] != 3 {
		t.Errorf("cache roundtrip gave %v, want %v", hit, vec)
	}
}

func TestCatalogUpsertAndLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	city := domain.City{ExternalID: 5, Name: "الرياض", NameEn: "Riyadh"}
	if err := s.UpsertCity(ctx, city); err != nil {
		t.Fatalf("upsert city: %v", err)
	}
	// Re-upsert with changed name must not create a second row.
	city.NameEn = "Riyadh City"
	if err := s.UpsertCity(ctx, city); err != nil {
		t.Fatalf("re-upsert city: %v", err)
	}

	cities, err := s.Cities(ctx, "")
	if err != nil {
		t.Fatalf("list cities: %v", err)
	}
	if len(cities) != 1 {
		t.Fatalf("got %d cities, want 1", len(cities))
	}
	if cities[0].NameEn != "Riyadh City" {
		t.Errorf("upsert did not update name_en: %q", cities[0].NameEn)
	}

	brand := domain.Brand{ExternalID: 7, Title: "نوفا"}
	if err := s.UpsertBrand(ctx, brand, 5); err != nil {
		t.Fatalf("upsert brand: %v", err)
	}
	brands, err := s.BrandsByCity(ctx, cities[0].ID)
	if err != nil {
		t.Fatalf("brands by city: %v", err)
	}
	if len(brands) != 1 || brands[0].Title != "نوفا" {
		t.Fatalf("brands by city = %+v, want one نوفا", brands)
	}

	product := domain.Product{ExternalID: 11, Title: "مياه نوفا 330 مل", Packing: "40", ContractPrice: 18.5}
	if err := s.UpsertProduct(ctx, product, 7); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	products, err := s.ProductsByBrand(ctx, brands[0].ID)
	if err != nil {
		t.Fatalf("products by brand: %v", err)
	}
	if len(products) != 1 || products[0].ContractPrice != 18.5 {
		t.Fatalf("products by brand = %+v", products)
	}

	found, err := s.SearchProducts(ctx, "نوفا")
	if err != nil {
		t.Fatalf("search products: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("search found %d products, want 1", len(found))
	}
}

func TestSyncLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if last, err := s.LastSyncLog(ctx); err != nil || last != nil {
		t.Fatalf("LastSyncLog on empty store = %+v, %v; want nil, nil", last, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	err := s.AppendSyncLog(ctx, domain.SyncLog{
		StartedAt: now, FinishedAt: now.Add(time.Minute),
		Status: "success", Cities: 3, Brands: 12, Products: 80,
	})
	if err != nil {
		t.Fatalf("append sync log: %v", err)
	}

	last, err := s.LastSyncLog(ctx)
	if err != nil {
		t.Fatalf("last sync log: %v", err)
	}
	if last == nil || last.Status != "success" || last.Products != 80 {
		t.Errorf("last sync log = %+v", last)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u, err := s.GetOrCreateUser(ctx, "966501234567")
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.TouchSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("touch session: %v", err)
	}
	if first.SessionID == "" || first.UserID != u.ID {
		t.Errorf("session = %+v", first)
	}

	// A second touch keeps the same session id.
	second, err := s.TouchSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("second touch: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %q -> %q", first.SessionID, second.SessionID)
	}

	if err := s.SetSessionContext(ctx, u.ID, `{"last_type":"inquiry"}`); err != nil {
		t.Fatalf("set session context: %v", err)
	}
	got, err := s.TouchSession(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Context != `{"last_type":"inquiry"}` {
		t.Errorf("session context = %q", got.Context)
	}
}

func TestUpdateUserConclusion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u, err := s.GetOrCreateUser(ctx, "966501234567")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateUserConclusion(ctx, u.ID, "عميل دائم"); err != nil {
		t.Fatalf("update conclusion: %v", err)
	}
	reloaded, err := s.GetOrCreateUser(ctx, "966501234567")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Conclusion != "عميل دائم" {
		t.Errorf("conclusion = %q", reloaded.Conclusion)
	}
}
