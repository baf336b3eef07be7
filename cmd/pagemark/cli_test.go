package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/note"
	"github.com/pagemark/pagemark/internal/store"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	baseDir := t.TempDir()
	st, err := store.Open(baseDir, note.LimitsFor(note.TierFree))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, baseDir
}

// runApp runs the CLI app with stdout captured, optionally piping stdin.
func runApp(t *testing.T, st *store.Store, cfg *config.Config, baseDir, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(st, cfg, baseDir)

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	oldStdin := os.Stdin
	if stdin != "" {
		stdinR, stdinW, _ := os.Pipe()
		os.Stdin = stdinR
		go func() {
			_, _ = stdinW.WriteString(stdin)
			stdinW.Close()
		}()
	}

	err := app.Run(append([]string{"pagemark"}, args...))

	os.Stdin = oldStdin
	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single tag", "foo", []string{"foo"}},
		{"multiple tags", "foo,bar,baz", []string{"foo", "bar", "baz"}},
		{"tags with spaces", " foo , bar , baz ", []string{"foo", "bar", "baz"}},
		{"empty tags filtered", "foo,,bar,", []string{"foo", "bar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseTags(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d tags, got %d", len(tt.expected), len(result))
			}
			for i, tag := range result {
				if tag != tt.expected[i] {
					t.Errorf("expected tag[%d]=%q, got %q", i, tt.expected[i], tag)
				}
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{"valid days", "7d", 7, false},
		{"zero days", "0d", 0, false},
		{"negative days", "-7d", 0, true},
		{"no suffix", "7", 0, true},
		{"wrong suffix", "7h", 0, true},
		{"invalid number", "abcd", 0, true},
		{"empty string", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestCLIAdd(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	out, err := runApp(t, st, cfg, baseDir, "# Shopping\n\nmilk, eggs",
		"add", "--domain=Example.COM", "--tags=todo,Todo")
	if err != nil {
		t.Fatalf("add command failed: %v", err)
	}

	var saved note.Note
	if err := json.Unmarshal([]byte(out), &saved); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if saved.ID == "" {
		t.Error("expected generated id")
	}
	if saved.Domain != "example.com" {
		t.Errorf("Domain = %q, want normalized example.com", saved.Domain)
	}
	if saved.Title != "Shopping" {
		t.Errorf("Title = %q, want derived from heading", saved.Title)
	}
	if len(saved.Tags) != 1 {
		t.Errorf("Tags = %v, want deduplicated", saved.Tags)
	}
}

func TestCLIAddRequiresDomain(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	_, err := runApp(t, st, cfg, baseDir, "", "add")
	if err == nil {
		t.Fatal("expected error for missing --domain")
	}
}

func TestCLIGetAndDelete(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	n, err := st.Put(&note.Note{ID: uuid.NewString(), Domain: "example.com", Title: "Keep", Content: "x"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, err := runApp(t, st, cfg, baseDir, "", "get", n.ID)
	if err != nil {
		t.Fatalf("get command failed: %v", err)
	}
	if !strings.Contains(out, "Keep") {
		t.Errorf("get output missing title: %s", out)
	}

	if _, err := runApp(t, st, cfg, baseDir, "", "delete", n.ID); err != nil {
		t.Fatalf("delete command failed: %v", err)
	}

	_, err = runApp(t, st, cfg, baseDir, "", "get", n.ID)
	if err == nil {
		t.Fatal("expected error fetching deleted note")
	}
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestCLIList(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	for _, d := range []string{"example.com", "example.com", "other.org"} {
		if _, err := st.Put(&note.Note{ID: uuid.NewString(), Domain: d, Content: "x"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	out, err := runApp(t, st, cfg, baseDir, "", "list", "--domain=example.com")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}

	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if payload.Count != 2 {
		t.Errorf("count = %d, want 2", payload.Count)
	}
}

func TestCLIVersionWorkflow(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	n, err := st.Put(&note.Note{ID: uuid.NewString(), Domain: "example.com", Title: "v1", Content: "first"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := runApp(t, st, cfg, baseDir, "", "checkpoint", n.ID); err != nil {
		t.Fatalf("checkpoint command failed: %v", err)
	}

	n.Title = "v2"
	if _, err := st.Put(n); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, err := runApp(t, st, cfg, baseDir, "", "versions", n.ID)
	if err != nil {
		t.Fatalf("versions command failed: %v", err)
	}
	var versions struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &versions); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if versions.Count != 1 {
		t.Fatalf("count = %d, want 1", versions.Count)
	}

	out, err = runApp(t, st, cfg, baseDir, "", "restore", n.ID, "1")
	if err != nil {
		t.Fatalf("restore command failed: %v", err)
	}
	var draft note.Note
	if err := json.Unmarshal([]byte(out), &draft); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if draft.Title != "v1" || !draft.IsDraft {
		t.Errorf("draft = %+v, want title v1 and is_draft", draft)
	}
}

func TestCLIExportImport(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	if _, err := st.Put(&note.Note{ID: uuid.NewString(), Domain: "example.com", Title: "A", Content: "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, err := runApp(t, st, cfg, baseDir, "", "export")
	if err != nil {
		t.Fatalf("export command failed: %v", err)
	}
	var exported struct {
		Path  string `json:"path"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if exported.Count != 1 {
		t.Errorf("count = %d, want 1", exported.Count)
	}

	out, err = runApp(t, st, cfg, baseDir, "", "import", "--path="+exported.Path, "--mode=replace")
	if err != nil {
		t.Fatalf("import command failed: %v", err)
	}
	var imported struct {
		Imported int `json:"imported"`
	}
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if imported.Imported != 1 {
		t.Errorf("imported = %d, want 1", imported.Imported)
	}
}

func TestCLIStatus(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	if _, err := st.Put(&note.Note{ID: uuid.NewString(), Domain: "example.com", Content: "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, err := runApp(t, st, cfg, baseDir, "", "status")
	if err != nil {
		t.Fatalf("status command failed: %v", err)
	}

	var status struct {
		SyncConfigured   bool `json:"sync_configured"`
		PendingNotes     int  `json:"pending_notes"`
		PendingDeletions int  `json:"pending_deletions"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if status.SyncConfigured {
		t.Error("sync_configured should be false by default")
	}
	if status.PendingNotes != 1 {
		t.Errorf("pending_notes = %d, want 1", status.PendingNotes)
	}
}

func TestCLISyncUnconfigured(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	_, err := runApp(t, st, cfg, baseDir, "", "sync")
	if err == nil {
		t.Fatal("expected error for unconfigured sync")
	}
	if !strings.Contains(err.Error(), "VALIDATION_ERROR") {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestCLIPurge(t *testing.T) {
	st, baseDir := setupTestStore(t)
	cfg := config.DefaultConfig()

	n, err := st.Put(&note.Note{ID: uuid.NewString(), Domain: "example.com", Content: "x"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Delete(n.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := st.MarkDeletionsSynced([]string{n.ID}); err != nil {
		t.Fatalf("MarkDeletionsSynced failed: %v", err)
	}

	// The purge cutoff is exclusive. Let the clock tick past the record.
	time.Sleep(2 * time.Millisecond)
	out, err := runApp(t, st, cfg, baseDir, "", "purge", "--older-than=0d")
	if err != nil {
		t.Fatalf("purge command failed: %v", err)
	}
	var purged struct {
		Purged int `json:"purged"`
	}
	if err := json.Unmarshal([]byte(out), &purged); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if purged.Purged != 1 {
		t.Errorf("purged = %d, want 1", purged.Purged)
	}
}
