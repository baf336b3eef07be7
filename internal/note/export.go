package note

// ExportRecord is the JSONL line format for export files. The first line of
// an export file is a header record with PagemarkExport set; every other
// line is one note. Content is written in the clear: export files live on
// the user's own disk, outside the encryption boundary.
type ExportRecord struct {
	PagemarkExport bool   `json:"_pagemark_export,omitempty"`
	SchemaVersion  string `json:"schema_version,omitempty"`
	ExportedAt     int64  `json:"exported_at,omitempty"`

	ID            string   `json:"id,omitempty"`
	Domain        string   `json:"domain,omitempty"`
	URL           string   `json:"url,omitempty"`
	Title         string   `json:"title,omitempty"`
	Content       string   `json:"content,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CreatedAt     int64    `json:"created_at,omitempty"`
	UpdatedAt     int64    `json:"updated_at,omitempty"`
	IsDeleted     bool     `json:"is_deleted,omitempty"`
	IsPlaceholder bool     `json:"is_placeholder,omitempty"`
}

// ToExportRecord converts a note to its export line.
func ToExportRecord(n *Note) ExportRecord {
	return ExportRecord{
		ID:            n.ID,
		Domain:        n.Domain,
		URL:           n.URL,
		Title:         n.Title,
		Content:       n.Content,
		Tags:          n.Tags,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
		IsDeleted:     n.IsDeleted,
		IsPlaceholder: n.IsPlaceholder,
	}
}

// ToNote converts an export line back into a note. Timestamps are carried
// over as-is; the store re-stamps UpdatedAt on insert so imported notes are
// picked up by the next sync cycle.
func (r ExportRecord) ToNote() *Note {
	return &Note{
		ID:            r.ID,
		Domain:        r.Domain,
		URL:           r.URL,
		Title:         r.Title,
		Content:       r.Content,
		Tags:          r.Tags,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		IsDeleted:     r.IsDeleted,
		IsPlaceholder: r.IsPlaceholder,
	}
}
