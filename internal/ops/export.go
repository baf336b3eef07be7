package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/store"
)

// exportSchemaVersion is written into the header line of every export file.
const exportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path           string // optional, default: <baseDir>/exports/<domain>-<timestamp>.jsonl
	Domain         string // optional filter by domain
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes notes to a JSONL file: one header line, then one note per
// line, in the clear. The file is written to a temp path first and renamed
// into place so an existing export survives a failed run.
func Export(ctx context.Context, st *store.Store, cfg *config.Config, baseDir string, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		exportPath = defaultExportPath(baseDir, input.Domain, now)
	}

	// Validate ALL paths (both user-provided and default) for security.
	// This catches injection attacks via domain names in default paths.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, baseDir); err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved).
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	header := note.ExportRecord{
		PagemarkExport: true,
		SchemaVersion:  exportSchemaVersion,
		ExportedAt:     exportedAt,
	}
	if err := writeLine(file, header); err != nil {
		return nil, err
	}

	notes, err := st.List(store.ListFilter{
		Domain:         input.Domain,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return nil, err
	}

	count := 0
	for _, n := range notes {
		select {
		case <-ctx.Done():
			return nil, errors.NewInternal(fmt.Errorf("export cancelled: %w", ctx.Err()))
		default:
		}

		if err := writeLine(file, note.ToExportRecord(n)); err != nil {
			return nil, err
		}
		count++
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// Check if destination is a symlink (os.Rename would follow it).
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows, os.Rename fails if the destination exists. We intentionally
	// fail safely (preserving the existing file) instead of doing a non-atomic
	// delete+rename that could lose the original if rename fails.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewValidation("export destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: exportedAt,
	}, nil
}

func writeLine(file *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := file.Write([]byte("\n")); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// defaultExportPath generates the default export path.
// Format: <baseDir>/exports/<domain>-<timestamp>.jsonl or all-<timestamp>.jsonl
func defaultExportPath(baseDir, domain string, now time.Time) string {
	timestamp := now.Format("2006-01-02T150405")
	name := "all"
	if domain != "" {
		// Normalize first, then sanitize for filename to prevent path
		// traversal/injection via malicious domain strings.
		name = SanitizeForFilename(note.NormalizeDomain(domain))
	}
	return filepath.Join(ExportsDir(baseDir), fmt.Sprintf("%s-%s.jsonl", name, timestamp))
}
