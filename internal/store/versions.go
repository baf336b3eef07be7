package store

import (
	"database/sql"
	"fmt"

	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
)

// SaveVersion appends an immutable snapshot of the note's current title and
// content. Debounced autosaves never produce snapshots: the call no-ops and
// returns nil. Free-tier notes are pruned to the newest MaxVersions on write.
func (s *Store) SaveVersion(noteID string, reason note.SaveReason) (*note.VersionSnapshot, error) {
	if reason == note.SaveReasonAuto {
		return nil, nil
	}

	live, err := s.Get(noteID, false)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE note_id = ?`, noteID).Scan(&next); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	snap := &note.VersionSnapshot{
		NoteID:    noteID,
		Version:   next,
		Title:     live.Title,
		Content:   live.Content,
		CreatedAt: nowMs(),
	}

	_, err = tx.Exec(`
		INSERT INTO versions (note_id, version, title, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, snap.NoteID, snap.Version, snap.Title, snap.Content, snap.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	// Enforce the tier cap on write: oldest snapshots past the cap go.
	if s.limits.MaxVersions > 0 {
		_, err = tx.Exec(`DELETE FROM versions WHERE note_id = ? AND version <= ?`,
			noteID, next-s.limits.MaxVersions)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return snap, nil
}

// ListVersions returns a note's snapshots, newest first.
func (s *Store) ListVersions(noteID string) ([]*note.VersionSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT note_id, version, title, content, created_at
		FROM versions
		WHERE note_id = ?
		ORDER BY version DESC
	`, noteID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	snaps := []*note.VersionSnapshot{}
	for rows.Next() {
		var v note.VersionSnapshot
		if err := rows.Scan(&v.NoteID, &v.Version, &v.Title, &v.Content, &v.CreatedAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		snaps = append(snaps, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return snaps, nil
}

// RestoreVersion returns a draft copy of the snapshot applied over the live
// note. The live note is not mutated: previewing history must never destroy
// the current edit, so the caller decides whether to Put the draft.
func (s *Store) RestoreVersion(noteID string, version int) (*note.Note, error) {
	live, err := s.Get(noteID, false)
	if err != nil {
		return nil, err
	}

	var snap note.VersionSnapshot
	err = s.db.QueryRow(`
		SELECT note_id, version, title, content, created_at
		FROM versions
		WHERE note_id = ? AND version = ?
	`, noteID, version).Scan(&snap.NoteID, &snap.Version, &snap.Title, &snap.Content, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("%s@v%d", noteID, version))
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	draft := *live
	draft.Title = snap.Title
	draft.Content = snap.Content
	draft.IsDraft = true
	return &draft, nil
}
