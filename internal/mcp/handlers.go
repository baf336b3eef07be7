package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/ops"
	"github.com/pagemark/pagemark/internal/store"
	"github.com/pagemark/pagemark/internal/syncer"
)

// Handlers holds dependencies for MCP tool handlers. The engine is nil when
// sync is not configured; the note tools keep working locally either way.
type Handlers struct {
	store   *store.Store
	cfg     *config.Config
	baseDir string
	engine  *syncer.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st *store.Store, cfg *config.Config, baseDir string, engine *syncer.Engine) *Handlers {
	return &Handlers{store: st, cfg: cfg, baseDir: baseDir, engine: engine}
}

// Request types for each tool

// AddRequest represents the arguments for note_add.
type AddRequest struct {
	ID      string   `json:"id,omitempty"`
	Domain  string   `json:"domain"`
	URL     string   `json:"url,omitempty"`
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// GetRequest represents the arguments for note_get.
type GetRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ListRequest represents the arguments for note_list.
type ListRequest struct {
	Domain         string `json:"domain,omitempty"`
	URL            string `json:"url,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// DeleteRequest represents the arguments for note_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// CheckpointRequest represents the arguments for note_checkpoint.
type CheckpointRequest struct {
	ID string `json:"id"`
}

// VersionsRequest represents the arguments for note_versions.
type VersionsRequest struct {
	ID string `json:"id"`
}

// RestoreRequest represents the arguments for note_restore.
type RestoreRequest struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// ExportRequest represents the arguments for note_export.
type ExportRequest struct {
	Path           string `json:"path,omitempty"`
	Domain         string `json:"domain,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ImportRequest represents the arguments for note_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleAdd handles the note_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	saved, err := h.store.Put(&note.Note{
		ID:      id,
		Domain:  input.Domain,
		URL:     input.URL,
		Title:   input.Title,
		Content: input.Content,
		Tags:    input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(saved)
}

// HandleGet handles the note_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	n, err := h.store.Get(input.ID, input.IncludeDeleted)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(n)
}

// HandleList handles the note_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	notes, err := h.store.List(store.ListFilter{
		Domain:         input.Domain,
		URL:            input.URL,
		IncludeDeleted: input.IncludeDeleted,
		Limit:          input.Limit,
		Offset:         input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"notes": notes,
		"count": len(notes),
	})
}

// HandleDelete handles the note_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	if err := h.store.Delete(input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"id": input.ID, "deleted": true})
}

// HandleCheckpoint handles the note_checkpoint tool call.
func (h *Handlers) HandleCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CheckpointRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	snap, err := h.store.SaveVersion(input.ID, note.SaveReasonManual)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(snap)
}

// HandleVersions handles the note_versions tool call.
func (h *Handlers) HandleVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VersionsRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	versions, err := h.store.ListVersions(input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"id":       input.ID,
		"versions": versions,
		"count":    len(versions),
	})
}

// HandleRestore handles the note_restore tool call.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RestoreRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	draft, err := h.store.RestoreVersion(input.ID, input.Version)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(draft)
}

// HandleExport handles the note_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.store, h.cfg, h.baseDir, ops.ExportInput{
		Path:           input.Path,
		Domain:         input.Domain,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the note_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := ops.Import(h.store, h.cfg, h.baseDir, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSyncNow handles the sync_now tool call.
func (h *Handlers) HandleSyncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.engine == nil {
		return errorResult(errors.NewValidation("sync is not configured; set PAGEMARK_REMOTE_URL, PAGEMARK_USER_ID, PAGEMARK_TOKEN and PAGEMARK_PASSPHRASE")), nil
	}

	result, err := h.engine.ManualSync(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSyncStatus handles the sync_status tool call.
func (h *Handlers) HandleSyncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload := map[string]any{
		"configured": h.engine != nil,
		"status":     string(syncer.StatusIdle),
	}
	if h.engine != nil {
		payload["status"] = string(h.engine.Status())
		if last := h.engine.LastResult(); last != nil {
			payload["last_cycle"] = last
		}
	}
	return successResult(payload)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if perr, ok := err.(*errors.PagemarkError); ok {
		errorObj := map[string]any{
			"code":    perr.Code,
			"message": perr.Message,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if perr.Code != errors.ErrInternal && perr.Details != nil {
			errorObj["details"] = perr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
