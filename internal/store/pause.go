package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aquabot/internal/domain"
)

// UpsertPause creates or refreshes the pause for a conversation. A repeated
// agent message extends expires_at rather than stacking a second pause.
func (s *Store) UpsertPause(ctx context.Context, p domain.ConversationPause) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_pauses (conversation_id, phone_number, agent_email, agent_name, paused_at, expires_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		   phone_number = excluded.phone_number,
		   agent_email  = excluded.agent_email,
		   agent_name   = excluded.agent_name,
		   paused_at    = excluded.paused_at,
		   expires_at   = excluded.expires_at,
		   is_active    = 1`,
		p.ConversationID, p.PhoneNumber, p.AgentEmail, p.AgentName, p.PausedAt, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert pause: %w", err)
	}
	return nil
}

// GetPause returns the pause row for a conversation, or nil if none exists.
func (s *Store) GetPause(ctx context.Context, conversationID string) (*domain.ConversationPause, error) {
	var p domain.ConversationPause
	var email, name sql.NullString
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, phone_number, agent_email, agent_name, paused_at, expires_at, is_active
		 FROM conversation_pauses WHERE conversation_id = ?`, conversationID,
	).Scan(&p.ID, &p.ConversationID, &p.PhoneNumber, &email, &name, &p.PausedAt, &p.ExpiresAt, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pause: %w", err)
	}
	p.AgentEmail = email.String
	p.AgentName = name.String
	p.Active = active == 1
	return &p, nil
}

// DeactivatePause marks a conversation's pause inactive. Deactivating a
// conversation with no pause is a no-op.
func (s *Store) DeactivatePause(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversation_pauses SET is_active = 0 WHERE conversation_id = ?`, conversationID)
	return err
}

// SweepExpiredPauses deactivates pauses past their expiry. Correctness does
// not depend on this; the gate checks expiry lazily. This keeps the table
// tidy for operators.
func (s *Store) SweepExpiredPauses(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation_pauses SET is_active = 0 WHERE is_active = 1 AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
