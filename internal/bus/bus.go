// Package bus decouples the webhook boundary from the routing pipeline: the
// HTTP handler acks fast and the consumer loop processes deliveries
// asynchronously with bounded concurrency.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aquabot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based queue of inbound webhook deliveries.
type InMemoryBus struct {
	inbound chan domain.InboundMessage
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates an InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundMessage, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues a delivery. Blocks up to 10 seconds if the bus is full
// instead of dropping immediately.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "sender", msg.SenderID)
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting", "sender", msg.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "sender", msg.SenderID)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s", "sender", msg.SenderID)
		}
	}
}

// Subscribe returns the inbound channel for the consumer loop.
func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// Close stops accepting publications and drains the channel for consumers.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}

// Consume runs handle for each delivery with at most concurrency in flight.
// It returns when the bus is closed and drained, or when ctx is cancelled.
func Consume(ctx context.Context, b *InMemoryBus, concurrency int, handle func(context.Context, domain.InboundMessage)) {
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case msg, ok := <-b.Subscribe():
			if !ok {
				wg.Wait()
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer func() {
					<-sem
					wg.Done()
				}()
				handle(ctx, m)
			}(msg)
		}
	}
}
