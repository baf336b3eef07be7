package store

import (
	"database/sql"

	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
)

// LoadCursor reads the persisted sync cursor. A fresh database yields the
// zero cursor, which makes every note sync-eligible.
func (s *Store) LoadCursor() (*note.SyncCursor, error) {
	var c note.SyncCursor
	err := s.db.QueryRow(`SELECT last_sync_ms, change_count FROM sync_state WHERE id = 1`).
		Scan(&c.LastSyncMs, &c.ChangeCount)
	if err == sql.ErrNoRows {
		return &note.SyncCursor{}, nil
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &c, nil
}

// SaveCursor persists the cursor. Called by the sync engine only, at the end
// of a successful cycle; a restart therefore never replays already-synced
// history.
func (s *Store) SaveCursor(c *note.SyncCursor) error {
	_, err := s.db.Exec(`UPDATE sync_state SET last_sync_ms = ?, change_count = ? WHERE id = 1`,
		c.LastSyncMs, c.ChangeCount)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// bumpChangeCount increments the mutation counter inside a write transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func bumpChangeCount(tx execer) error {
	if _, err := tx.Exec(`UPDATE sync_state SET change_count = change_count + 1 WHERE id = 1`); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}
