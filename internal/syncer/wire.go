package syncer

import "github.com/pagemark/pagemark/internal/seal"

// SealedNote is the wire form of a note. Title and content travel sealed;
// domain, url, timestamps, and the content hash remain plaintext metadata so
// the server can index without decrypting.
type SealedNote struct {
	ID            string         `json:"id"`
	Domain        string         `json:"domain"`
	URL           string         `json:"url,omitempty"`
	TitleSealed   *seal.Envelope `json:"titleSealed"`
	ContentSealed *seal.Envelope `json:"contentSealed"`
	ContentHash   string         `json:"contentHash"`
	CreatedAt     int64          `json:"createdAt"`
	UpdatedAt     int64          `json:"updatedAt"`
}

// Deletion is a tombstone reference on the wire.
type Deletion struct {
	ID string `json:"id"`
}

// ReconcileRequest is the single request sent per sync cycle.
type ReconcileRequest struct {
	UserID    string       `json:"userId"`
	Notes     []SealedNote `json:"notes"`
	Deletions []Deletion   `json:"deletions"`

	// CycleID correlates retries of the same cycle; carried as a header,
	// not part of the wire body.
	CycleID string `json:"-"`
}

// ReconcileResponse carries back only the notes the device does not yet have
// locally. The remote store never pushes updates to notes the device already
// possesses.
type ReconcileResponse struct {
	MissingNotes []SealedNote `json:"missingNotes"`
}
