package routing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"aquabot/internal/domain"
)

// PauseStore is the pause persistence the gate needs.
type PauseStore interface {
	UpsertPause(ctx context.Context, p domain.ConversationPause) error
	GetPause(ctx context.Context, conversationID string) (*domain.ConversationPause, error)
	DeactivatePause(ctx context.Context, conversationID string) error
}

// PauseGate suppresses automated replies while a human agent owns a
// conversation. Pauses are time-boxed and expire lazily on read.
type PauseGate struct {
	store         PauseStore
	ttl           time.Duration
	triggerEmails map[string]struct{}
	failOpen      bool
	logger        *slog.Logger
}

type PauseGateConfig struct {
	Store         PauseStore
	TTL           time.Duration
	TriggerEmails []string
	FailOpen      bool
	Logger        *slog.Logger
}

func NewPauseGate(cfg PauseGateConfig) *PauseGate {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Hour
	}
	triggers := make(map[string]struct{}, len(cfg.TriggerEmails))
	for _, email := range cfg.TriggerEmails {
		triggers[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	return &PauseGate{
		store:         cfg.Store,
		ttl:           cfg.TTL,
		triggerEmails: triggers,
		failOpen:      cfg.FailOpen,
		logger:        cfg.Logger,
	}
}

// IsAgentAuthored reports whether the delivery carries a human-agent
// signature: the owner flag plus an operator email from the trigger set.
// An empty trigger set accepts any operator email.
func (g *PauseGate) IsAgentAuthored(msg domain.InboundMessage) bool {
	if !msg.AgentOwner {
		return false
	}
	email := strings.ToLower(strings.TrimSpace(msg.OperatorEmail))
	if email == "" {
		return false
	}
	if len(g.triggerEmails) == 0 {
		return true
	}
	_, ok := g.triggerEmails[email]
	return ok
}

// RecordTakeover creates or extends the pause for a conversation. Repeated
// agent messages slide the expiry forward rather than stacking pauses.
func (g *PauseGate) RecordTakeover(ctx context.Context, msg domain.InboundMessage, now time.Time) error {
	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = msg.SenderID
	}
	pause := domain.ConversationPause{
		ConversationID: conversationID,
		PhoneNumber:    msg.SenderID,
		AgentEmail:     msg.OperatorEmail,
		PausedAt:       now,
		ExpiresAt:      now.Add(g.ttl),
		Active:         true,
	}
	if err := g.store.UpsertPause(ctx, pause); err != nil {
		g.logger.Error("record agent takeover failed",
			"conversation_id", conversationID, "error", err)
		return err
	}
	g.logger.Info("conversation paused for human handling",
		"conversation_id", conversationID, "agent", msg.OperatorEmail,
		"expires_at", pause.ExpiresAt)
	return nil
}

// IsPaused reports whether automated handling is suspended for the
// conversation at the given instant. A lapsed pause is deactivated on read.
// Storage failures follow the fail-open policy: open means not paused
// (risking bot interference during a human handoff), closed means paused.
func (g *PauseGate) IsPaused(ctx context.Context, conversationID string, now time.Time) bool {
	pause, err := g.store.GetPause(ctx, conversationID)
	if err != nil {
		g.logger.Warn("pause lookup failure", "conversation_id", conversationID,
			"fail_open", g.failOpen, "error", err)
		return !g.failOpen
	}
	if pause == nil || !pause.Active {
		return false
	}
	if pause.Expired(now) {
		if err := g.store.DeactivatePause(ctx, conversationID); err != nil {
			g.logger.Warn("pause expiry sweep failed", "conversation_id", conversationID, "error", err)
		}
		return false
	}
	return true
}

// Unpause ends a pause early, resuming automated handling.
func (g *PauseGate) Unpause(ctx context.Context, conversationID string) error {
	return g.store.DeactivatePause(ctx, conversationID)
}
