package llm

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(3, 60)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := time.Now()
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("burst wait %d took %v", i, elapsed)
		}
	}
}

func TestRateLimiterRefills(t *testing.T) {
	// 600/min = 10 tokens per second; an empty bucket refills within ~100ms.
	rl := NewRateLimiter(1, 600)
	ctx := context.Background()

	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("refill wait took %v", elapsed)
	}
}

func TestRateLimiterHonorsCancel(t *testing.T) {
	// One token per minute: the second Wait would block for ~60s.
	rl := NewRateLimiter(1, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("cancelled wait returned nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not unblock on cancel")
	}
}
