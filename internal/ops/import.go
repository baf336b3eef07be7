package ops

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/errors"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/store"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (nothing imported)
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeCopy    ImportMode = "copy"    // assign a new id on collision
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import reads notes from a JSONL export file and inserts them through the
// store, which re-stamps UpdatedAt so imported notes are treated as fresh
// local edits and picked up by the next sync cycle. Tombstone lines
// (is_deleted) are skipped; a deletion cannot be meaningfully imported.
func Import(st *store.Store, cfg *config.Config, baseDir string, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewValidation("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeCopy {
		return nil, errors.NewValidation("mode must be one of: error, replace, copy")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg, baseDir); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)

	// For mode:error, fail on any parse errors before touching the store.
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return &ImportOutput{Errors: parseErrors}, nil
	}

	if input.Mode == ImportModeError {
		// Pre-check collisions so a failed import leaves the store untouched.
		for _, r := range records {
			if _, err := st.Get(r.ID, true); err == nil {
				return &ImportOutput{Errors: []ImportError{{
					ID:      r.ID,
					Code:    "ID_COLLISION",
					Message: fmt.Sprintf("note with id %q already exists", r.ID),
				}}}, nil
			} else if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}
	}

	out := &ImportOutput{Errors: parseErrors}
	out.Skipped += len(parseErrors)

	for _, r := range records {
		if r.IsDeleted {
			out.Skipped++
			continue
		}

		n := r.ToNote()

		if input.Mode == ImportModeCopy {
			if _, err := st.Get(n.ID, true); err == nil {
				n.ID = uuid.NewString()
			} else if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}

		if _, err := st.Put(n); err != nil {
			var perr *errors.PagemarkError
			code := string(errors.ErrInternal)
			if stderrors.As(err, &perr) {
				code = string(perr.Code)
			}
			out.Errors = append(out.Errors, ImportError{
				ID:      n.ID,
				Code:    code,
				Message: err.Error(),
			})
			out.Skipped++
			continue
		}
		out.Imported++
	}

	return out, nil
}

// parseExportFile parses a JSONL export file into records. The header line
// and blank lines are skipped; malformed lines become per-line errors.
func parseExportFile(file *os.File) ([]note.ExportRecord, []ImportError) {
	var records []note.ExportRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record note.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		if record.PagemarkExport {
			continue
		}

		if record.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}

		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}
