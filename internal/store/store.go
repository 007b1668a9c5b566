// Package store is the SQLite-backed durable store for conversations,
// routing state, the knowledge base, and the product catalog.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a single SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the database at dbPath and runs migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		phone_number TEXT NOT NULL UNIQUE,
		name         TEXT,
		conclusion   TEXT,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone_number);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content         TEXT NOT NULL,
		message_type    TEXT,
		language        TEXT DEFAULT 'ar',
		transport_id    TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, created_at);

	CREATE TABLE IF NOT EXISTS bot_replies (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  INTEGER NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
		content     TEXT NOT NULL,
		language    TEXT DEFAULT 'ar',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS processed_messages (
		transport_id TEXT PRIMARY KEY,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_pauses (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL UNIQUE,
		phone_number    TEXT NOT NULL,
		agent_email     TEXT,
		agent_name      TEXT,
		paused_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at      DATETIME NOT NULL,
		is_active       INTEGER DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_pauses_active ON conversation_pauses(is_active, expires_at);

	CREATE TABLE IF NOT EXISTS complaints (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL REFERENCES users(id),
		message_id  INTEGER NOT NULL REFERENCES messages(id),
		content     TEXT NOT NULL,
		status      TEXT DEFAULT 'pending',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS suggestions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL REFERENCES users(id),
		message_id  INTEGER NOT NULL REFERENCES messages(id),
		content     TEXT NOT NULL,
		status      TEXT DEFAULT 'pending',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		session_id    TEXT NOT NULL UNIQUE,
		context       TEXT,
		started_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_activity DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS knowledge_entries (
		id         TEXT PRIMARY KEY,
		question   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		category   TEXT,
		language   TEXT,
		source     TEXT,
		priority   INTEGER DEFAULT 0,
		embedding  BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		text_hash  TEXT PRIMARY KEY,
		embedding  BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cities (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id INTEGER NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		name_en     TEXT,
		lat         REAL,
		lng         REAL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS brands (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id INTEGER NOT NULL UNIQUE,
		title       TEXT NOT NULL,
		title_en    TEXT,
		image_url   TEXT,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS brand_cities (
		brand_id INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
		city_id  INTEGER NOT NULL REFERENCES cities(id) ON DELETE CASCADE,
		PRIMARY KEY (brand_id, city_id)
	);

	CREATE TABLE IF NOT EXISTS products (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id    INTEGER NOT NULL UNIQUE,
		brand_id       INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
		title          TEXT NOT NULL,
		packing        TEXT,
		contract_price REAL DEFAULT 0,
		market_price   REAL DEFAULT 0,
		barcode        TEXT,
		updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand_id);

	CREATE TABLE IF NOT EXISTS sync_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME,
		status      TEXT NOT NULL,
		cities      INTEGER DEFAULT 0,
		brands      INTEGER DEFAULT 0,
		products    INTEGER DEFAULT 0,
		error       TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
