package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"aquabot/internal/domain"
)

// InsertKnowledgeEntry stores a Q&A pair together with its question embedding.
func (s *Store) InsertKnowledgeEntry(ctx context.Context, e domain.KnowledgeEntry, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_entries (id, question, answer, category, language, source, priority, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Question, e.Answer, e.Category, e.Language, e.Source, e.Priority, encodeVector(embedding))
	if err != nil {
		return fmt.Errorf("insert knowledge entry: %w", err)
	}
	return nil
}

// DeleteKnowledgeEntry removes a Q&A pair.
func (s *Store) DeleteKnowledgeEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE id = ?`, id)
	return err
}

// KnowledgeVector pairs an entry with its stored embedding.
type KnowledgeVector struct {
	Entry     domain.KnowledgeEntry
	Embedding []float32
}

// AllKnowledgeVectors loads every entry with its embedding. The knowledge
// base is small (hundreds of rows), so a full scan per query is fine.
func (s *Store) AllKnowledgeVectors(ctx context.Context) ([]KnowledgeVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, category, language, source, priority, embedding, created_at
		 FROM knowledge_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KnowledgeVector
	for rows.Next() {
		var v KnowledgeVector
		var category, language, source sql.NullString
		var blob []byte
		if err := rows.Scan(&v.Entry.ID, &v.Entry.Question, &v.Entry.Answer,
			&category, &language, &source, &v.Entry.Priority, &blob, &v.Entry.CreatedAt); err != nil {
			return nil, err
		}
		v.Entry.Category = category.String
		v.Entry.Language = language.String
		v.Entry.Source = source.String
		v.Embedding = decodeVector(blob)
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListKnowledgeEntries returns all Q&A pairs without embeddings.
func (s *Store) ListKnowledgeEntries(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	vectors, err := s.AllKnowledgeVectors(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.KnowledgeEntry, len(vectors))
	for i, v := range vectors {
		entries[i] = v.Entry
	}
	return entries, nil
}

// CountKnowledgeEntries returns the number of stored Q&A pairs.
func (s *Store) CountKnowledgeEntries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM knowledge_entries`).Scan(&n)
	return n, err
}

// CachedEmbedding returns the cached vector for a content hash, or nil.
func (s *Store) CachedEmbedding(ctx context.Context, textHash string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM embedding_cache WHERE text_hash = ?`, textHash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVector(blob), nil
}

// CacheEmbedding stores a vector under a content hash.
func (s *Store) CacheEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (text_hash, embedding) VALUES (?, ?)`,
		textHash, encodeVector(embedding))
	return err
}

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
