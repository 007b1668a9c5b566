package store

import (
	"context"
	"fmt"
)

// MarkProcessed records a transport message id atomically. It returns true if
// this call was the first to record the id (insert-if-absent), false if the
// id was already present.
func (s *Store) MarkProcessed(ctx context.Context, transportID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (transport_id) VALUES (?)`, transportID)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
