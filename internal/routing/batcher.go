package routing

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"aquabot/internal/domain"
)

// Batcher coalesces rapid-fire messages from the same sender into one
// logical turn. Each message restarts the sender's quiet-period timer; when
// the window closes without a new message the accumulated texts are joined
// in arrival order and delivered exactly once. A sender's closed turns are
// delivered one at a time, in the order their windows closed.
//
// State is in-process, so all deliveries for a sender must land on the same
// process for coalescing to work.
type Batcher struct {
	window  time.Duration
	deliver func(domain.ConversationTurn)
	logger  *slog.Logger

	mu      sync.Mutex
	idle    sync.Cond // signaled when a sender's delivery loop exits
	pending map[string]*pendingBatch
	queue   map[string][]domain.ConversationTurn
	running map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

type pendingBatch struct {
	texts       []string
	transportID string
	openedAt    time.Time
	timer       *time.Timer
}

func NewBatcher(window time.Duration, deliver func(domain.ConversationTurn), logger *slog.Logger) *Batcher {
	if window <= 0 {
		window = 3 * time.Second
	}
	b := &Batcher{
		window:  window,
		deliver: deliver,
		logger:  logger,
		pending: map[string]*pendingBatch{},
		queue:   map[string][]domain.ConversationTurn{},
		running: map[string]bool{},
	}
	b.idle.L = &b.mu
	return b
}

// Enqueue appends a message to the sender's open window, opening one if
// needed, and restarts the quiet-period timer.
func (b *Batcher) Enqueue(msg domain.InboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Late message during shutdown: deliver as its own turn rather
		// than dropping it.
		b.logger.Warn("batcher closed, delivering message unbatched", "sender", msg.SenderID)
		now := time.Now()
		go b.deliver(domain.ConversationTurn{
			SenderID:    msg.SenderID,
			Text:        msg.Text,
			TransportID: msg.TransportID,
			OpenedAt:    now,
			ClosedAt:    now,
			Count:       1,
		})
		return
	}

	p, ok := b.pending[msg.SenderID]
	if !ok {
		p = &pendingBatch{
			transportID: msg.TransportID,
			openedAt:    time.Now(),
		}
		b.pending[msg.SenderID] = p
		b.wg.Add(1)
		sender := msg.SenderID
		p.timer = time.AfterFunc(b.window, func() {
			defer b.wg.Done()
			b.fire(sender)
		})
	} else if p.timer.Stop() {
		p.timer.Reset(b.window)
	}
	// When Stop reports a fired timer its callback is already in flight
	// and still owns delivery; the message joins the closing batch.
	p.texts = append(p.texts, msg.Text)
}

// fire closes the sender's window and queues the turn for delivery.
// Removal of the pending entry under the mutex makes closing exactly-once
// even when a timer fire races an Enqueue.
func (b *Batcher) fire(senderID string) {
	b.mu.Lock()
	p, ok := b.pending[senderID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, senderID)
	turn := domain.ConversationTurn{
		SenderID:    senderID,
		Text:        strings.Join(p.texts, "\n"),
		TransportID: p.transportID,
		OpenedAt:    p.openedAt,
		ClosedAt:    time.Now(),
		Count:       len(p.texts),
	}
	b.queueTurnLocked(turn)
	b.mu.Unlock()

	b.logger.Debug("batch window closed", "sender", senderID, "messages", turn.Count)
}

// queueTurnLocked hands a closed turn to the sender's delivery loop,
// starting one if none is running. Callers hold b.mu. Turns queue in close
// order, so one sender's turns never run concurrently or out of order.
func (b *Batcher) queueTurnLocked(turn domain.ConversationTurn) {
	b.wg.Add(1)
	if b.running[turn.SenderID] {
		b.queue[turn.SenderID] = append(b.queue[turn.SenderID], turn)
		return
	}
	b.running[turn.SenderID] = true
	go b.drain(turn.SenderID, turn)
}

// drain delivers the sender's closed turns one at a time until the queue
// is empty.
func (b *Batcher) drain(senderID string, turn domain.ConversationTurn) {
	for {
		b.deliver(turn)
		b.wg.Done()

		b.mu.Lock()
		q := b.queue[senderID]
		if len(q) == 0 {
			delete(b.running, senderID)
			b.idle.Broadcast()
			b.mu.Unlock()
			return
		}
		turn = q[0]
		if len(q) == 1 {
			delete(b.queue, senderID)
		} else {
			b.queue[senderID] = q[1:]
		}
		b.mu.Unlock()
	}
}

// Flush closes the sender's window immediately if one is open and waits
// for the sender's queued turns to finish delivering.
func (b *Batcher) Flush(senderID string) {
	b.mu.Lock()
	p, ok := b.pending[senderID]
	stopped := ok && p.timer.Stop()
	b.mu.Unlock()
	// A false Stop means the timer callback already owns the close.
	if stopped {
		b.fire(senderID)
		b.wg.Done()
	}

	b.mu.Lock()
	for b.pending[senderID] != nil || b.running[senderID] {
		b.idle.Wait()
	}
	b.mu.Unlock()
}

// Close flushes every open window and waits for in-flight deliveries. After
// Close, new messages are delivered unbatched.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	stopped := make([]string, 0, len(b.pending))
	for sender, p := range b.pending {
		if p.timer.Stop() {
			stopped = append(stopped, sender)
		}
	}
	b.mu.Unlock()

	for _, sender := range stopped {
		b.fire(sender)
		b.wg.Done()
	}
	b.wg.Wait()
}

// PendingSenders reports how many windows are currently open.
func (b *Batcher) PendingSenders() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
