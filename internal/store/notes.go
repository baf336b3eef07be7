package store

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
)

// maxDerivedTitleLen caps titles derived from markdown content.
const maxDerivedTitleLen = 120

// ListFilter selects notes for List. Zero-value lists all non-deleted notes.
type ListFilter struct {
	Domain         string // filter by site
	URL            string // filter by page (implies its domain scoping)
	IncludeDeleted bool
	Limit          int // 0 means no limit
	Offset         int
}

// nowMs returns the current wall clock in Unix milliseconds.
func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Put validates and upserts a note. UpdatedAt is stamped unconditionally,
// strictly above any previously stored value for the id — even if the caller
// supplied a stale timestamp. This is what guarantees imported or restored
// content becomes sync-eligible.
func (s *Store) Put(n *note.Note) (*note.Note, error) {
	if n == nil {
		return nil, apperrors.NewValidation("note is required")
	}

	stored := *n
	stored.Domain = note.NormalizeDomain(stored.Domain)
	stored.Tags = note.NormalizeTags(stored.Tags)
	if stored.Title == "" && stored.Content != "" {
		stored.Title = note.DeriveTitle(stored.Content, maxDerivedTitleLen)
	}
	// Saving a draft (e.g. a restored version preview) makes it live.
	// IsPlaceholder passes through: only the sync engine sets it, and any
	// normal save of the same id clears it, making the note pushable again.
	stored.IsDraft = false
	stored.IsDeleted = false

	if err := note.Validate(&stored, s.limits); err != nil {
		return nil, err
	}

	var tagsJSON sql.NullString
	if len(stored.Tags) > 0 {
		data, err := json.Marshal(stored.Tags)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		tagsJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer tx.Rollback()

	// Monotonic stamp: strictly above the previous updated_at for this id,
	// even when the wall clock has not advanced.
	var prevUpdated, prevCreated sql.NullInt64
	err = tx.QueryRow(`SELECT updated_at, created_at FROM notes WHERE id = ?`, stored.ID).
		Scan(&prevUpdated, &prevCreated)
	if err != nil && err != sql.ErrNoRows {
		return nil, apperrors.NewInternal(err)
	}

	now := nowMs()
	stored.UpdatedAt = now
	if prevUpdated.Valid && stored.UpdatedAt <= prevUpdated.Int64 {
		stored.UpdatedAt = prevUpdated.Int64 + 1
	}
	if prevCreated.Valid {
		stored.CreatedAt = prevCreated.Int64
	} else if stored.CreatedAt == 0 {
		stored.CreatedAt = now
	}

	_, err = tx.Exec(`
		INSERT INTO notes (id, domain, url, title, content, tags_json, created_at, updated_at, is_deleted, is_placeholder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			domain = excluded.domain,
			url = excluded.url,
			title = excluded.title,
			content = excluded.content,
			tags_json = excluded.tags_json,
			updated_at = excluded.updated_at,
			is_deleted = 0,
			is_placeholder = excluded.is_placeholder
	`, stored.ID, stored.Domain, toNullString(stored.URL), stored.Title, stored.Content,
		tagsJSON, stored.CreatedAt, stored.UpdatedAt, boolToInt(stored.IsPlaceholder))
	if err != nil {
		return nil, mapWriteError(err)
	}

	// A put is an explicit local re-creation: it cancels any pending
	// tombstone for the id.
	if _, err := tx.Exec(`DELETE FROM deletions WHERE note_id = ? AND synced = 0`, stored.ID); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if err := bumpChangeCount(tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return &stored, nil
}

// Get retrieves a note by id. Tombstoned notes are excluded unless
// includeDeleted is set.
func (s *Store) Get(id string, includeDeleted bool) (*note.Note, error) {
	query := `
		SELECT id, domain, url, title, content, tags_json, created_at, updated_at, is_deleted, is_placeholder
		FROM notes
		WHERE id = ?
	`
	if !includeDeleted {
		query += " AND is_deleted = 0"
	}

	n, err := scanNote(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(id)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return n, nil
}

// List retrieves notes by domain, by url, or unscoped, newest first.
func (s *Store) List(f ListFilter) ([]*note.Note, error) {
	query := `
		SELECT id, domain, url, title, content, tags_json, created_at, updated_at, is_deleted, is_placeholder
		FROM notes
		WHERE 1=1
	`
	args := []any{}

	if !f.IncludeDeleted {
		query += " AND is_deleted = 0"
	}
	if f.URL != "" {
		query += " AND url = ?"
		args = append(args, f.URL)
	} else if f.Domain != "" {
		query += " AND domain = ?"
		args = append(args, note.NormalizeDomain(f.Domain))
	}

	query += " ORDER BY updated_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, max(f.Offset, 0))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	notes := []*note.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return notes, nil
}

// Delete tombstones a note and appends an unsynced deletion record in the
// same transaction. Physical removal is deferred until the remote store
// acknowledges the deletion, so a crash between the local delete and the
// next sync cannot lose the tombstone.
func (s *Store) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.NewInternal(err)
	}
	defer tx.Rollback()

	var prevUpdated int64
	err = tx.QueryRow(`SELECT updated_at FROM notes WHERE id = ? AND is_deleted = 0`, id).Scan(&prevUpdated)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFound(id)
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}

	now := nowMs()
	updated := now
	if updated <= prevUpdated {
		updated = prevUpdated + 1
	}

	if _, err := tx.Exec(`UPDATE notes SET is_deleted = 1, updated_at = ? WHERE id = ?`, updated, id); err != nil {
		return mapWriteError(err)
	}
	if _, err := tx.Exec(`
		INSERT INTO deletions (note_id, deleted_at, synced) VALUES (?, ?, 0)
		ON CONFLICT(note_id) DO UPDATE SET deleted_at = excluded.deleted_at, synced = 0
	`, id, now); err != nil {
		return mapWriteError(err)
	}

	if err := bumpChangeCount(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// GetChangedSince returns all non-deleted notes with UpdatedAt strictly after
// the given timestamp, oldest first. This is the sole basis for "what needs
// to sync", so UpdatedAt monotonicity is load-bearing. Placeholder notes are
// excluded: pushing one would replace the remote's ciphertext with the
// placeholder text.
func (s *Store) GetChangedSince(sinceMs int64) ([]*note.Note, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, url, title, content, tags_json, created_at, updated_at, is_deleted, is_placeholder
		FROM notes
		WHERE updated_at > ? AND is_deleted = 0 AND is_placeholder = 0
		ORDER BY updated_at ASC
	`, sinceMs)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	notes := []*note.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return notes, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanNote scans a single row into a Note.
func scanNote(row rowScanner) (*note.Note, error) {
	var (
		n             note.Note
		url           sql.NullString
		tagsJSON      sql.NullString
		isDeleted     int
		isPlaceholder int
	)

	err := row.Scan(&n.ID, &n.Domain, &url, &n.Title, &n.Content, &tagsJSON,
		&n.CreatedAt, &n.UpdatedAt, &isDeleted, &isPlaceholder)
	if err != nil {
		return nil, err
	}

	n.URL = fromNullString(url)
	n.IsDeleted = isDeleted != 0
	n.IsPlaceholder = isPlaceholder != 0

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &n.Tags); err != nil {
			return nil, err
		}
	}

	return &n, nil
}

// boolToInt converts a bool to its SQLite integer form.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// toNullString converts an optional string to sql.NullString.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// fromNullString converts a sql.NullString to a plain string.
func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
