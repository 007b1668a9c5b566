package domain

import "time"

// User is a known sender identity keyed by phone number.
type User struct {
	ID          int64
	PhoneNumber string
	Name        string
	Conclusion  string // free-form operator notes about this user
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MessageRecord is a persisted inbound user message.
type MessageRecord struct {
	ID          int64
	UserID      int64
	Content     string
	Type        MessageType // empty until classified
	Language    string
	TransportID string
	CreatedAt   time.Time
}

// BotReply is a persisted outbound reply, append-only, at most one per message.
type BotReply struct {
	ID        int64
	MessageID int64
	Content   string
	Language  string
	CreatedAt time.Time
}

// HistoryEntry is one prior turn used for prompt context.
type HistoryEntry struct {
	Role    string // "user" | "bot"
	Content string
}

// ConversationPause is a time-boxed suppression of automated processing,
// created when a human agent takes over a conversation.
type ConversationPause struct {
	ID             int64
	ConversationID string
	PhoneNumber    string
	AgentEmail     string
	AgentName      string
	PausedAt       time.Time
	ExpiresAt      time.Time
	Active         bool
}

// Expired reports whether the pause has lapsed at the given instant.
func (p ConversationPause) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Session is a long-lived per-user session carrying context between turns.
type Session struct {
	ID           int64
	UserID       int64
	SessionID    string // uuid
	Context      string // JSON blob: detected language, selected city/brand, ...
	StartedAt    time.Time
	LastActivity time.Time
}
