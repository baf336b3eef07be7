// Package store implements the durable per-device Local Store: note CRUD,
// the append-only version log, the deletion log, and the persisted sync
// cursor. It has no network, encryption, or UI coupling.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pagemark/pagemark/internal/config"
	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Store is the Local Store over a per-device SQLite database. It exclusively
// owns notes, versions, and deletion records; the sync engine only reads and
// marks-synced through it.
type Store struct {
	db     *sql.DB
	limits note.TierLimits
}

// Open initializes the SQLite database at baseDir/pagemark.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.pagemark.
func Open(baseDir string, limits note.TierLimits) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to all pooled connections.
	dbPath := filepath.Join(baseDir, "pagemark.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return &Store{db: db, limits: limits}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func (s *Store) ConfigurePool(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		s.db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		s.db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS notes (
		  id         TEXT PRIMARY KEY,
		  domain     TEXT NOT NULL,
		  url        TEXT,
		  title      TEXT NOT NULL DEFAULT '',
		  content    TEXT NOT NULL DEFAULT '',
		  tags_json  TEXT,
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL,
		  is_deleted INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_notes_domain_updated
		ON notes(domain, updated_at DESC)
		WHERE is_deleted = 0;

		CREATE INDEX IF NOT EXISTS idx_notes_updated
		ON notes(updated_at);

		CREATE TABLE IF NOT EXISTS versions (
		  note_id    TEXT NOT NULL,
		  version    INTEGER NOT NULL,
		  title      TEXT NOT NULL DEFAULT '',
		  content    TEXT NOT NULL,
		  created_at INTEGER NOT NULL,
		  PRIMARY KEY (note_id, version)
		);

		CREATE TABLE IF NOT EXISTS deletions (
		  note_id    TEXT PRIMARY KEY,
		  deleted_at INTEGER NOT NULL,
		  synced     INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_deletions_unsynced
		ON deletions(synced)
		WHERE synced = 0;

		CREATE TABLE IF NOT EXISTS sync_state (
		  id           INTEGER PRIMARY KEY CHECK (id = 1),
		  last_sync_ms INTEGER NOT NULL DEFAULT 0,
		  change_count INTEGER NOT NULL DEFAULT 0
		);

		INSERT OR IGNORE INTO sync_state (id, last_sync_ms, change_count)
		VALUES (1, 0, 0);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: placeholder flag for pulled notes that failed to
	// decrypt. Placeholders are excluded from change detection so they can
	// never be pushed back over the remote's ciphertext.
	if version < 2 {
		if _, err := db.Exec(`ALTER TABLE notes ADD COLUMN is_placeholder INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := setUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// getUserVersion returns the current schema version (user_version pragma).
func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// setUserVersion sets the schema version (user_version pragma).
func setUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// mapWriteError converts a low-level write error into the structured
// taxonomy. Storage-quota exhaustion gets its own kind so callers can prompt
// for export/cleanup instead of silently dropping writes.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isQuotaError(err) {
		return apperrors.NewQuotaExceeded(err)
	}
	return apperrors.NewInternal(err)
}

// isQuotaError checks if the error is a SQLite full-database/disk condition.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "SQLITE_FULL")
}
