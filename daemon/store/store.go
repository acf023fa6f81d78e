// Package store is the persistence adapter: typed CRUD over sessions, files, peers, and
// settings, backed by SQLite. All multi-row writes execute inside a single transaction.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrSessionNotFound is returned when a session lookup finds no row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPeerNotFound is returned when a peer lookup finds no row.
	ErrPeerNotFound = errors.New("peer not found")
)

// Store manages SQLite-backed session, file, peer, and settings storage.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a Store backed by the SQLite database at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS app_settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transfer_sessions (
			id                TEXT PRIMARY KEY,
			direction         TEXT NOT NULL,
			peer_device_id    TEXT NOT NULL,
			peer_name         TEXT NOT NULL,
			status            TEXT NOT NULL,
			total_bytes       INTEGER NOT NULL,
			transferred_bytes INTEGER NOT NULL,
			avg_speed_bps     INTEGER NOT NULL,
			save_dir          TEXT NOT NULL,
			created_at        INTEGER NOT NULL,
			started_at        INTEGER,
			finished_at       INTEGER,
			error_code        TEXT,
			error_message     TEXT,
			cleanup_after_at  INTEGER
		);

		CREATE TABLE IF NOT EXISTS transfer_files (
			id                 TEXT PRIMARY KEY,
			session_id         TEXT NOT NULL,
			relative_path      TEXT NOT NULL,
			source_path        TEXT,
			target_path        TEXT,
			size_bytes         INTEGER NOT NULL,
			transferred_bytes  INTEGER NOT NULL,
			chunk_size         INTEGER NOT NULL,
			chunk_count        INTEGER NOT NULL,
			completed_bitmap   BLOB,
			blake3             TEXT,
			mime_type          TEXT,
			preview_kind       TEXT,
			preview_data       BLOB,
			status             TEXT NOT NULL,
			is_folder_archive  INTEGER NOT NULL DEFAULT 0,
			updated_at         INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES transfer_sessions(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS transfer_peers (
			device_id       TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL,
			paired_at       INTEGER,
			trust_level     TEXT NOT NULL,
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			blocked_until   INTEGER,
			last_seen_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_status ON transfer_sessions(status);
		CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON transfer_sessions(created_at);
		CREATE INDEX IF NOT EXISTS idx_files_session ON transfer_files(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	value := v.String
	return &value
}
