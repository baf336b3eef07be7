package note

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/pagemark/pagemark/internal/errors"
)

func validNote() *Note {
	return &Note{
		ID:      uuid.NewString(),
		Domain:  "example.com",
		Content: "some content",
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"Example.COM", "example.com"},
		{"  example.com  ", "example.com"},
		{"https://example.com", "example.com"},
		{"http://example.com/", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"lowercased", []string{"Reading", "TODO"}, []string{"reading", "todo"}},
		{"deduplicated", []string{"a", "A", "a "}, []string{"a"}},
		{"empties dropped", []string{"", "  ", "x"}, []string{"x"}},
		{"all empty", []string{"", " "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	limits := LimitsFor(TierFree)

	if err := Validate(validNote(), limits); err != nil {
		t.Fatalf("valid note rejected: %v", err)
	}

	t.Run("nil note", func(t *testing.T) {
		if err := Validate(nil, limits); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("err = %v, want VALIDATION_ERROR", err)
		}
	})

	t.Run("missing domain", func(t *testing.T) {
		n := validNote()
		n.Domain = ""
		if err := Validate(n, limits); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("err = %v, want VALIDATION_ERROR", err)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		n := validNote()
		n.ID = "not-a-uuid"
		if err := Validate(n, limits); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("err = %v, want VALIDATION_ERROR", err)
		}
	})

	t.Run("tag cap by tier", func(t *testing.T) {
		n := validNote()
		for i := 0; i < 11; i++ {
			n.Tags = append(n.Tags, strings.Repeat("x", i+1))
		}
		if err := Validate(n, limits); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("11 tags on free tier: err = %v, want VALIDATION_ERROR", err)
		}
		if err := Validate(n, LimitsFor(TierPremium)); err != nil {
			t.Errorf("11 tags on premium tier rejected: %v", err)
		}
	})
}

func TestLimitsFor(t *testing.T) {
	free := LimitsFor(TierFree)
	if free.MaxVersions != 5 || free.MaxTags != 10 {
		t.Errorf("free limits = %+v", free)
	}

	premium := LimitsFor(TierPremium)
	if premium.MaxVersions != 0 || premium.MaxTags != 50 {
		t.Errorf("premium limits = %+v", premium)
	}

	// Unknown tiers get the conservative defaults.
	if LimitsFor(Tier("enterprise")) != free {
		t.Error("unknown tier should get free limits")
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"first heading", "# Reading list\n\nsome links", "Reading list"},
		{"later heading", "intro text\n\n## Details\n\nmore", "Details"},
		{"no heading", "just a line\nsecond line", "just a line"},
		{"empty", "", ""},
		{"whitespace only", "   \n\n  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.content, 120); got != tt.want {
				t.Errorf("DeriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveTitleTruncates(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := DeriveTitle(long, 120)
	if len([]rune(got)) != 120 {
		t.Errorf("truncated to %d runes, want 120", len([]rune(got)))
	}
}

func TestPlainTextIgnoresInlineFormatting(t *testing.T) {
	a := PlainText("some **bold** and *italic* text")
	b := PlainText("some bold and italic text")
	if a != b {
		t.Errorf("PlainText differs for formatting-only change: %q vs %q", a, b)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("Title", "body text")
	h2 := ContentHash("Title", "body text")
	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}

	if ContentHash("Title", "other body") == h1 {
		t.Error("different content should hash differently")
	}
	if ContentHash("Other", "body text") == h1 {
		t.Error("different title should hash differently")
	}
	// Title and content are domain-separated: moving text between them
	// changes the hash.
	if ContentHash("Titlebody", " text") == h1 {
		t.Error("title/content boundary should affect the hash")
	}
}

func TestExportRecordRoundTrip(t *testing.T) {
	n := &Note{
		ID:        uuid.NewString(),
		Domain:    "example.com",
		URL:       "https://example.com/page",
		Title:     "T",
		Content:   "C",
		Tags:      []string{"a"},
		CreatedAt: 100,
		UpdatedAt: 200,
	}

	got := ToExportRecord(n).ToNote()
	if got.ID != n.ID || got.Domain != n.Domain || got.Title != n.Title ||
		got.Content != n.Content || got.CreatedAt != n.CreatedAt {
		t.Errorf("round trip mismatch: %+v vs %+v", got, n)
	}
}
