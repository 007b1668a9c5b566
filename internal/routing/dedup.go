// Package routing implements the core pipeline that turns webhook deliveries
// into at-most-one reply per user turn: dedup, agent-pause gating, batching,
// knowledge matching, classification, and type-specific dispatch.
package routing

import (
	"context"
	"log/slog"
)

// DedupStore is the atomic insert-if-absent the deduplicator needs.
type DedupStore interface {
	MarkProcessed(ctx context.Context, transportID string) (bool, error)
}

// Deduplicator suppresses webhook redeliveries by transport message id.
type Deduplicator struct {
	store    DedupStore
	failOpen bool
	logger   *slog.Logger
}

func NewDeduplicator(store DedupStore, failOpen bool, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{store: store, failOpen: failOpen, logger: logger}
}

// FirstDelivery atomically records the id and reports whether this delivery
// was the first with it. An absent id is never a duplicate. On storage
// failure the configured fail-open policy decides: open means process anyway
// (risking a double reply), closed means suppress.
func (d *Deduplicator) FirstDelivery(ctx context.Context, transportID string) bool {
	if transportID == "" {
		return true
	}
	first, err := d.store.MarkProcessed(ctx, transportID)
	if err != nil {
		d.logger.Warn("dedup storage failure", "transport_id", transportID,
			"fail_open", d.failOpen, "error", err)
		return d.failOpen
	}
	return first
}
