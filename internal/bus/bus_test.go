package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"aquabot/internal/domain"
)

func TestConsumeDrainsAfterClose(t *testing.T) {
	b := New(16, slog.Default())
	for i := 0; i < 5; i++ {
		b.Publish(domain.InboundMessage{SenderID: fmt.Sprintf("s%d", i)})
	}
	b.Close()

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{})
	go func() {
		Consume(context.Background(), b, 2, func(_ context.Context, m domain.InboundMessage) {
			mu.Lock()
			seen[m.SenderID] = true
			mu.Unlock()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not return after bus close")
	}
	if len(seen) != 5 {
		t.Errorf("handled %d deliveries, want 5", len(seen))
	}
}

func TestConsumeBoundsConcurrency(t *testing.T) {
	b := New(32, slog.Default())
	for i := 0; i < 12; i++ {
		b.Publish(domain.InboundMessage{SenderID: fmt.Sprintf("s%d", i)})
	}
	b.Close()

	var mu sync.Mutex
	var inFlight, peak int
	done := make(chan struct{})
	go func() {
		Consume(context.Background(), b, 3, func(context.Context, domain.InboundMessage) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not finish")
	}
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestConsumeStopsOnContextCancel(t *testing.T) {
	b := New(4, slog.Default())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Consume(ctx, b, 1, func(context.Context, domain.InboundMessage) {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not stop on cancel")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New(4, slog.Default())
	b.Close()
	// Must not panic on the closed channel.
	b.Publish(domain.InboundMessage{SenderID: "late"})
}
