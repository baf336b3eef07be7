package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var addToolDef = mcp.NewTool("note_add",
	mcp.WithDescription("Create or update a note for a web page. Content is markdown; the title is derived from the content when omitted."),
	mcp.WithString("id",
		mcp.Description("Note id (UUID). Omit to create a new note; pass an existing id to update it."),
	),
	mcp.WithString("domain",
		mcp.Required(),
		mcp.Description("Site domain the note belongs to, e.g. example.com."),
	),
	mcp.WithString("url",
		mcp.Description("Full page URL, if the note is tied to a specific page rather than the whole domain."),
	),
	mcp.WithString("title",
		mcp.Description("Note title. Derived from the first heading or line of content when omitted."),
	),
	mcp.WithString("content",
		mcp.Description("Note body in markdown."),
	),
	mcp.WithArray("tags",
		mcp.Description("Tags for the note. Normalized to lowercase; duplicates removed."),
		mcp.Items(map[string]any{"type": "string"}),
	),
)

var getToolDef = mcp.NewTool("note_get",
	mcp.WithDescription("Fetch a single note by id."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Note id."),
	),
	mcp.WithBoolean("include_deleted",
		mcp.Description("Also match notes that are deleted but not yet purged."),
	),
)

var listToolDef = mcp.NewTool("note_list",
	mcp.WithDescription("List notes, newest first, optionally scoped to a domain or an exact URL."),
	mcp.WithString("domain",
		mcp.Description("Restrict to notes for this domain."),
	),
	mcp.WithString("url",
		mcp.Description("Restrict to notes for this exact URL. Takes precedence over domain."),
	),
	mcp.WithBoolean("include_deleted",
		mcp.Description("Include notes that are deleted but not yet purged."),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of notes to return. 0 means no limit."),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of notes to skip, for paging."),
	),
)

var deleteToolDef = mcp.NewTool("note_delete",
	mcp.WithDescription("Delete a note. The note disappears from listings immediately and is purged from disk after the deletion has propagated to the remote store."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Note id."),
	),
)

var checkpointToolDef = mcp.NewTool("note_checkpoint",
	mcp.WithDescription("Save a version snapshot of a note's current title and content. Old snapshots beyond the tier's cap are pruned."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Note id."),
	),
)

var versionsToolDef = mcp.NewTool("note_versions",
	mcp.WithDescription("List a note's saved version snapshots, newest first."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Note id."),
	),
)

var restoreToolDef = mcp.NewTool("note_restore",
	mcp.WithDescription("Preview a saved version of a note as a draft. The stored note is not modified; save the draft with note_add to make it current."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Note id."),
	),
	mcp.WithNumber("version",
		mcp.Required(),
		mcp.Description("Version number to restore."),
	),
)

var exportToolDef = mcp.NewTool("note_export",
	mcp.WithDescription("Export notes to a JSONL file on disk."),
	mcp.WithString("path",
		mcp.Description("Destination .jsonl path. Defaults to a timestamped file in the exports directory."),
	),
	mcp.WithString("domain",
		mcp.Description("Only export notes for this domain."),
	),
	mcp.WithBoolean("include_deleted",
		mcp.Description("Include notes that are deleted but not yet purged."),
	),
)

var importToolDef = mcp.NewTool("note_import",
	mcp.WithDescription("Import notes from a JSONL export file. Imported notes are treated as fresh local edits and picked up by the next sync."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Source .jsonl path."),
	),
	mcp.WithString("mode",
		mcp.Description("Collision behavior: error (default, nothing imported on collision), replace (overwrite), or copy (assign a new id)."),
		mcp.Enum("error", "replace", "copy"),
	),
)

var syncNowToolDef = mcp.NewTool("sync_now",
	mcp.WithDescription("Run one sync cycle against the remote store, or join the cycle already in flight."),
)

var syncStatusToolDef = mcp.NewTool("sync_status",
	mcp.WithDescription("Report the sync engine state and the result of the last completed cycle."),
)
