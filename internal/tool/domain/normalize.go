package domain

import (
	"strings"

	"github.com/gosimple/slug"
)

// NormalizeName folds vendor spellings ("Google Workspace", "google-workspace ")
// onto one catalog key.
func NormalizeName(name string) string {
	return slug.Make(strings.TrimSpace(name))
}
