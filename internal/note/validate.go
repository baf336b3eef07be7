package note

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/pagemark/pagemark/internal/errors"
)

// validate is shared across calls; validator instances cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeDomain normalizes a domain key: trimmed, lowercased, no scheme or
// trailing slash.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	return s
}

// NormalizeTags trims, lowercases, and deduplicates tags, preserving first
// occurrence order. Empty tags are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks a note against the required-field rules and the tier's tag
// cap. It returns a VALIDATION_ERROR describing the first violation.
func Validate(n *Note, limits TierLimits) error {
	if n == nil {
		return apperrors.NewValidation("note is required")
	}
	if err := validate.Struct(n); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewValidation(fmt.Sprintf("field %q failed rule %q", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperrors.NewValidation(err.Error())
	}
	if limits.MaxTags > 0 && len(n.Tags) > limits.MaxTags {
		return apperrors.NewValidation(fmt.Sprintf("too many tags: %d (max %d for tier)", len(n.Tags), limits.MaxTags))
	}
	return nil
}
