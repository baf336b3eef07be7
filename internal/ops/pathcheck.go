// Package ops implements the import/export operations that move notes
// between the local store and JSONL files on disk.
package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // for import (read file)
	PathCheckWrite                      // for export (write file)
)

// ValidatePath performs path validation for import/export operations.
// It checks:
// 1. Path traversal (.. sequences)
// 2. Extension (.jsonl required)
// 3. Directory restrictions (file must be DIRECTLY in <baseDir>/exports or allowed_paths - no subdirectories)
// 4. Symlink safety (parent dir must not be a symlink, file must not be a symlink)
//
// The "no subdirectories" rule eliminates TOCTOU race conditions where an attacker could
// swap an intermediate directory component with a symlink between validation and open.
// Combined with O_NOFOLLOW on the final component, this provides complete symlink protection.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config, baseDir string) error {
	if path == "" {
		return errors.NewValidation("path is required")
	}

	if containsTraversal(path) {
		return errors.NewValidation("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewValidation("path must have .jsonl extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewValidation(fmt.Sprintf("invalid path: %v", err))
	}

	// If unsafe paths allowed, skip directory checks (but NOT symlink checks).
	// Symlink restrictions always apply because O_NOFOLLOW is used at open time.
	if cfg != nil && cfg.AllowUnsafePaths {
		if mode == PathCheckRead {
			if _, err := os.Stat(absPath); os.IsNotExist(err) {
				return errors.NewNotFound(path)
			}
		}
		if info, err := os.Lstat(absPath); err == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				return errors.NewValidation("path must not be a symlink")
			}
		}
		return nil
	}

	allowedDirs, err := getAllowedDirs(cfg, baseDir)
	if err != nil {
		return err
	}

	// File must be DIRECTLY in an allowed directory (no subdirectories allowed).
	parentDir := filepath.Dir(absPath)
	if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
		return errors.NewValidation(
			fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
				allowedDirs))
	}

	if info, err := os.Lstat(parentDir); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewValidation("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewNotFound(path)
		}
	}

	// Reject symlink files for both read and write modes. O_NOFOLLOW at open
	// time would catch this too, but rejecting early gives a clearer error.
	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewValidation("path must not be a symlink")
		}
	}

	return nil
}

// getAllowedDirs returns the list of allowed directories (absolute, cleaned).
// If an allowed directory is itself a symlink, it is resolved so matching
// happens against the real target.
func getAllowedDirs(cfg *config.Config, baseDir string) ([]string, error) {
	dirs := []string{ExportsDir(baseDir)}

	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewValidation(fmt.Sprintf("invalid allowed path: %v", err))
		}

		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewValidation(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}

	return result, nil
}

// isDirectlyInAllowedDir checks if parentDir exactly matches one of the
// allowed directories. This is stricter than "is under" - the file must be
// directly in the allowed dir, not in a subdirectory.
func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// ExportsDir returns the default exports directory under baseDir.
func ExportsDir(baseDir string) string {
	return filepath.Join(baseDir, "exports")
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename sanitizes a string for safe use in a filename.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}
	return s
}
