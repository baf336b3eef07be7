package store

import (
	"database/sql"
	"strings"
	"time"

	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
)

// GetUnsyncedDeletions returns deletion records not yet acknowledged by the
// remote store, oldest first.
func (s *Store) GetUnsyncedDeletions() ([]*note.DeletionRecord, error) {
	rows, err := s.db.Query(`
		SELECT note_id, deleted_at, synced
		FROM deletions
		WHERE synced = 0
		ORDER BY deleted_at ASC
	`)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	recs := []*note.DeletionRecord{}
	for rows.Next() {
		var (
			r      note.DeletionRecord
			synced int
		)
		if err := rows.Scan(&r.NoteID, &r.DeletedAt, &synced); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		r.Synced = synced != 0
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return recs, nil
}

// MarkDeletionsSynced marks deletion records acknowledged and performs the
// deferred physical purge of the tombstoned note rows and their version
// history. The deletion records themselves are retained (synced=1) so a note
// can never be resurrected by a later pull.
func (s *Store) MarkDeletionsSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.NewInternal(err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.Exec(`UPDATE deletions SET synced = 1 WHERE note_id IN (`+placeholders+`)`, args...); err != nil {
		return apperrors.NewInternal(err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE is_deleted = 1 AND id IN (`+placeholders+`)`, args...); err != nil {
		return apperrors.NewInternal(err)
	}
	if _, err := tx.Exec(`DELETE FROM versions WHERE note_id IN (`+placeholders+`)`, args...); err != nil {
		return apperrors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// HasDeletion reports whether any deletion record (synced or not) exists for
// the id. The sync engine uses it as a resurrection guard on pulled notes.
func (s *Store) HasDeletion(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM deletions WHERE note_id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewInternal(err)
	}
	return true, nil
}

// PurgeAcknowledged removes acknowledged deletion records older than the
// given number of days. Returns the number purged.
func (s *Store) PurgeAcknowledged(olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).UnixMilli()

	result, err := s.db.Exec(`DELETE FROM deletions WHERE synced = 1 AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	return int(n), nil
}
