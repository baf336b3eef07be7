package note

// Note is a site-scoped note. The local store is the source of truth for all
// reads; the remote store only ever sees sealed title/content.
type Note struct {
	// ID is a UUID that uniquely identifies this note for its lifetime
	ID string `json:"id" validate:"required,uuid4"`

	// Domain scopes the note to a site (e.g. "example.com")
	Domain string `json:"domain" validate:"required,max=255"`

	// URL optionally scopes the note to a single page
	URL string `json:"url,omitempty" validate:"omitempty,max=2048"`

	// Title is the plaintext title; sealed before leaving the device
	Title string `json:"title,omitempty"`

	// Content is the markdown body; sealed before leaving the device
	Content string `json:"content,omitempty"`

	// Tags is a bounded set of labels (cardinality capped by tier)
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is the Unix-millisecond creation timestamp
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt strictly increases on every mutation; the sync engine
	// depends on this for change detection
	UpdatedAt int64 `json:"updated_at"`

	// IsDeleted marks the note as tombstoned pending remote acknowledgement
	IsDeleted bool `json:"is_deleted,omitempty"`

	// IsDraft marks an in-memory preview copy (e.g. a restored version).
	// Drafts are never persisted and never synced.
	IsDraft bool `json:"is_draft,omitempty"`

	// IsPlaceholder marks a pulled note that could not be decrypted on this
	// device. Placeholders are kept locally but never pushed: pushing would
	// overwrite the remote's good ciphertext with the placeholder text. The
	// flag clears on the next successful decrypt or local edit.
	IsPlaceholder bool `json:"is_placeholder,omitempty"`
}

// VersionSnapshot is an immutable snapshot of a note's title and content,
// created on explicit manual save.
type VersionSnapshot struct {
	NoteID    string `json:"note_id"`
	Version   int    `json:"version"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// DeletionRecord is a tombstone retained until the remote store acknowledges
// the deletion.
type DeletionRecord struct {
	NoteID    string `json:"note_id"`
	DeletedAt int64  `json:"deleted_at"`
	Synced    bool   `json:"synced"`
}

// SyncCursor is the persisted reconciliation cursor. It is read at the start
// of a sync cycle and written only after the cycle succeeds.
type SyncCursor struct {
	// LastSyncMs is the start time of the last successful cycle (Unix ms)
	LastSyncMs int64 `json:"last_sync_ms"`

	// ChangeCount counts local mutations since the last successful cycle
	ChangeCount int64 `json:"change_count"`
}

// SaveReason describes why a version snapshot was requested.
type SaveReason string

const (
	// SaveReasonManual is an explicit user save; it produces a snapshot.
	SaveReasonManual SaveReason = "manual_save"

	// SaveReasonAuto is a debounced autosave; it never produces a snapshot.
	SaveReasonAuto SaveReason = "auto_save"
)

// Tier identifies the account tier that gates retention limits.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// TierLimits holds per-tier retention caps. A zero MaxVersions means
// unlimited.
type TierLimits struct {
	MaxVersions int
	MaxTags     int
}

// LimitsFor returns the retention limits for a tier. Unknown tiers get the
// free limits.
func LimitsFor(t Tier) TierLimits {
	if t == TierPremium {
		return TierLimits{MaxVersions: 0, MaxTags: 50}
	}
	return TierLimits{MaxVersions: 5, MaxTags: 10}
}
