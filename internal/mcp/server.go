// Package mcp exposes note and sync operations as MCP tools over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/store"
	"github.com/pagemark/pagemark/internal/syncer"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"note_add": {
		def:     addToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAdd },
	},
	"note_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"note_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"note_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"note_checkpoint": {
		def:     checkpointToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCheckpoint },
	},
	"note_versions": {
		def:     versionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVersions },
	},
	"note_restore": {
		def:     restoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRestore },
	},
	"note_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"note_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"sync_now": {
		def:     syncNowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSyncNow },
	},
	"sync_status": {
		def:     syncStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSyncStatus },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Pagemark tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(st *store.Store, cfg *config.Config, baseDir string, engine *syncer.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pagemark",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(st, cfg, baseDir, engine)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(st *store.Store, cfg *config.Config, baseDir string, engine *syncer.Engine, version string) error {
	s := NewServer(st, cfg, baseDir, engine, version)
	return server.ServeStdio(s)
}
