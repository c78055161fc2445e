package internal

import (
	"regexp"
	"strings"
)

var assetIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidAssetID reports whether id can be used verbatim as an audio filename stem.
// Only ASCII letters, digits, '-' and '_' are accepted so that the same id
// resolves to the same file on every platform the bundle is deployed to.
func ValidAssetID(id string) bool {
	return assetIDPattern.MatchString(id)
}

// FoldAssetID returns the key under which two ids collide on a
// case-insensitive filesystem.
func FoldAssetID(id string) string {
	return strings.ToLower(id)
}

// SanitizeFilename creates a safe filename from a string
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isAlphaNumeric(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
