package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/logging"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/ops"
	"github.com/pagemark/pagemark/internal/seal"
	"github.com/pagemark/pagemark/internal/store"
	"github.com/pagemark/pagemark/internal/syncer"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st *store.Store, cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "pagemark",
		Usage:   "Local-first encrypted notes for the web",
		Version: Version,
		Commands: []*cli.Command{
			addCmd(st),
			getCmd(st),
			listCmd(st),
			deleteCmd(st),
			checkpointCmd(st),
			versionsCmd(st),
			restoreCmd(st),
			syncCmd(st, cfg, baseDir),
			statusCmd(st, cfg),
			exportCmd(st, cfg, baseDir),
			importCmd(st, cfg, baseDir),
			purgeCmd(st),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// addCmd creates the add command.
func addCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Create or update a note (reads content from stdin when piped)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Note id; omit to create a new note"},
			&cli.StringFlag{Name: "domain", Aliases: []string{"d"}, Required: true, Usage: "Site domain, e.g. example.com"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Full page URL (optional)"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Note title (derived from content when omitted)"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
		},
		Action: func(c *cli.Context) error {
			content := ""
			if stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				content = text
			}

			id := c.String("id")
			if id == "" {
				id = uuid.NewString()
			}

			saved, err := st.Put(&note.Note{
				ID:      id,
				Domain:  c.String("domain"),
				URL:     c.String("url"),
				Title:   c.String("title"),
				Content: content,
				Tags:    parseTags(c.String("tags")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(saved)
		},
	}
}

// getCmd creates the get command.
func getCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a note by id",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Also match notes deleted but not yet purged"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("id argument is required"))
			}

			n, err := st.Get(c.Args().First(), c.Bool("include-deleted"))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(n)
		},
	}
}

// listCmd creates the list command.
func listCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List notes, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "domain", Aliases: []string{"d"}, Usage: "Restrict to a domain"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Restrict to an exact URL"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include notes deleted but not yet purged"},
		},
		Action: func(c *cli.Context) error {
			notes, err := st.List(store.ListFilter{
				Domain:         c.String("domain"),
				URL:            c.String("url"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{
				"notes": notes,
				"count": len(notes),
			})
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a note (purged from disk after the deletion syncs)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("id argument is required"))
			}

			id := c.Args().First()
			if err := st.Delete(id); err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{"id": id, "deleted": true})
		},
	}
}

// checkpointCmd creates the checkpoint command.
func checkpointCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "checkpoint",
		Usage:     "Save a version snapshot of a note",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("id argument is required"))
			}

			snap, err := st.SaveVersion(c.Args().First(), note.SaveReasonManual)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(snap)
		},
	}
}

// versionsCmd creates the versions command.
func versionsCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "versions",
		Usage:     "List a note's version snapshots, newest first",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("id argument is required"))
			}

			id := c.Args().First()
			versions, err := st.ListVersions(id)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{
				"id":       id,
				"versions": versions,
				"count":    len(versions),
			})
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Preview a saved version as a draft (the stored note is not modified)",
		ArgsUsage: "<id> <version>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewValidation("id and version arguments are required"))
			}

			version, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return outputError(errors.NewValidation("version must be a number"))
			}

			draft, err := st.RestoreVersion(c.Args().First(), version)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(draft)
		},
	}
}

// syncCmd creates the sync command.
func syncCmd(st *store.Store, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync cycle against the remote store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Usage: "Keep syncing on the periodic interval until interrupted"},
		},
		Action: func(c *cli.Context) error {
			log := logging.New(os.Stderr, cfg.LogLevel)
			engine, err := buildEngine(st, cfg, baseDir, log)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("watch") {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				// One cycle up front so --watch gives immediate feedback.
				if res, err := engine.ManualSync(ctx); err != nil {
					log.WithError(err).Warn("sync cycle failed")
				} else {
					log.WithField("cycle_id", res.CycleID).Info("sync cycle complete")
				}
				engine.Run(ctx)
				return nil
			}

			result, err := engine.ManualSync(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show sync configuration, cursor, and pending work",
		Action: func(c *cli.Context) error {
			cursor, err := st.LoadCursor()
			if err != nil {
				return outputError(err)
			}
			pending, err := st.GetUnsyncedDeletions()
			if err != nil {
				return outputError(err)
			}
			changed, err := st.GetChangedSince(cursor.LastSyncMs)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{
				"sync_configured":   cfg.SyncConfigured(),
				"remote_url":        cfg.RemoteURL,
				"tier":              cfg.Tier,
				"last_sync_ms":      cursor.LastSyncMs,
				"pending_notes":     len(changed),
				"pending_deletions": len(pending),
			})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(st *store.Store, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export notes to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <base>/exports/<domain>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "domain", Aliases: []string{"d"}, Usage: "Only export notes for this domain"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include notes deleted but not yet purged"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, st, cfg, baseDir, ops.ExportInput{
				Path:           c.String("path"),
				Domain:         c.String("domain"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(st *store.Store, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import notes from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|copy"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(st, cfg, baseDir, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Drop acknowledged deletion records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge records acknowledged more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			days := 0
			if olderThan := c.String("older-than"); olderThan != "" {
				parsed, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewValidation(err.Error()))
				}
				days = parsed
			}

			purged, err := st.PurgeAcknowledged(days)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{"purged": purged})
		},
	}
}

// buildEngine assembles a sync engine from config and environment
// credentials. The auth token and passphrase only ever come from the
// environment; they are never written to the config file.
func buildEngine(st *store.Store, cfg *config.Config, baseDir string, log *logrus.Logger) (*syncer.Engine, error) {
	if !cfg.SyncConfigured() {
		return nil, errors.NewValidation("sync is not configured; set remote_url and user_id in config.json or PAGEMARK_REMOTE_URL and PAGEMARK_USER_ID")
	}

	token := os.Getenv("PAGEMARK_TOKEN")
	if token == "" {
		return nil, errors.NewValidation("PAGEMARK_TOKEN is not set")
	}
	passphrase := os.Getenv("PAGEMARK_PASSPHRASE")
	if passphrase == "" {
		return nil, errors.NewValidation("PAGEMARK_PASSPHRASE is not set")
	}

	salt, err := seal.LoadOrCreateSalt(baseDir, cfg.UserID)
	if err != nil {
		return nil, err
	}
	keys := seal.Derive([]byte(passphrase), salt)

	remote := syncer.NewHTTPRemote(cfg.RemoteURL, token)
	return syncer.New(st, remote, keys, cfg.UserID, cfg.SyncInterval(), log), nil
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if perr, ok := err.(*errors.PagemarkError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", perr.Code, perr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
