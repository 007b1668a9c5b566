package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aquabot/internal/domain"
)

// GetOrCreateUser returns the user for a phone number, creating it on first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, phoneNumber string) (*domain.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (phone_number) VALUES (?)`, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	var u domain.User
	var name, conclusion sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, name, conclusion, created_at, updated_at FROM users WHERE phone_number = ?`,
		phoneNumber,
	).Scan(&u.ID, &u.PhoneNumber, &name, &conclusion, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	u.Name = name.String
	u.Conclusion = conclusion.String
	return &u, nil
}

// UpdateUserConclusion replaces the operator notes for a user.
func (s *Store) UpdateUserConclusion(ctx context.Context, userID int64, conclusion string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET conclusion = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		conclusion, userID)
	return err
}

// SaveMessage persists an inbound user message and returns its record.
func (s *Store) SaveMessage(ctx context.Context, userID int64, content, transportID string) (*domain.MessageRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, content, transport_id) VALUES (?, ?, ?)`,
		userID, content, nullable(transportID))
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.MessageRecord{
		ID:          id,
		UserID:      userID,
		Content:     content,
		TransportID: transportID,
		CreatedAt:   time.Now(),
	}, nil
}

// SetMessageClassification stores the classifier's verdict on a message.
func (s *Store) SetMessageClassification(ctx context.Context, messageID int64, t domain.MessageType, language string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET message_type = ?, language = ? WHERE id = ?`,
		string(t), language, messageID)
	return err
}

// SaveReply records the bot's reply to a message. The UNIQUE constraint on
// message_id makes a second reply to the same message an error, which is the
// double-reply guard.
func (s *Store) SaveReply(ctx context.Context, messageID int64, content, language string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_replies (message_id, content, language) VALUES (?, ?, ?)`,
		messageID, content, language)
	if err != nil {
		return fmt.Errorf("save reply: %w", err)
	}
	return nil
}

// HasReply reports whether a reply was already recorded for the message.
func (s *Store) HasReply(ctx context.Context, messageID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bot_replies WHERE message_id = ?`, messageID).Scan(&n)
	return n > 0, err
}

// History returns the last limit exchanges for a user in chronological order,
// interleaving user messages with bot replies.
func (s *Store) History(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.content, r.content
		 FROM messages m LEFT JOIN bot_replies r ON r.message_id = m.id
		 WHERE m.user_id = ?
		 ORDER BY m.created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var userText string
		var botText sql.NullString
		if err := rows.Scan(&userText, &botText); err != nil {
			return nil, err
		}
		// Prepend to restore chronological order.
		pair := []domain.HistoryEntry{{Role: "user", Content: userText}}
		if botText.Valid && botText.String != "" {
			pair = append(pair, domain.HistoryEntry{Role: "bot", Content: botText.String})
		}
		entries = append(pair, entries...)
	}
	return entries, rows.Err()
}

// FormattedHistory renders recent history as speaker-labeled lines for prompts.
func (s *Store) FormattedHistory(ctx context.Context, userID int64, limit int) (string, error) {
	entries, err := s.History(ctx, userID, limit)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Role)
		sb.WriteString(": ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// TouchSession updates (creating if needed) the user's session and returns it.
func (s *Store) TouchSession(ctx context.Context, userID int64) (*domain.Session, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, session_id) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET last_activity = CURRENT_TIMESTAMP`,
		userID, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	var sess domain.Session
	var contextJSON sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, context, started_at, last_activity FROM sessions WHERE user_id = ?`,
		userID,
	).Scan(&sess.ID, &sess.UserID, &sess.SessionID, &contextJSON, &sess.StartedAt, &sess.LastActivity)
	if err != nil {
		return nil, err
	}
	sess.Context = contextJSON.String
	return &sess, nil
}

// SetSessionContext replaces the session context JSON for a user.
func (s *Store) SetSessionContext(ctx context.Context, userID int64, contextJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET context = ?, last_activity = CURRENT_TIMESTAMP WHERE user_id = ?`,
		contextJSON, userID)
	return err
}

// SaveComplaint records a complaint for team follow-up.
func (s *Store) SaveComplaint(ctx context.Context, userID, messageID int64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO complaints (user_id, message_id, content) VALUES (?, ?, ?)`,
		userID, messageID, content)
	return err
}

// SaveSuggestion records a suggestion for team review.
func (s *Store) SaveSuggestion(ctx context.Context, userID, messageID int64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestions (user_id, message_id, content) VALUES (?, ?, ?)`,
		userID, messageID, content)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
