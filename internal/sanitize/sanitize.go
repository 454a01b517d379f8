// Package sanitize turns free-form names into host-legal identifiers.
//
// Repository hosts accept names matching ^[a-z0-9][a-z0-9-]*[a-z0-9]$ (after
// lower-casing) of at most MaxRepositoryNameLength characters.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxRepositoryNameLength is the longest repository name we emit.
	MaxRepositoryNameLength = 100

	// MaxIdentifierLength is the longest generic identifier we emit.
	MaxIdentifierLength = 64

	// hashSuffixLength is len("-" + 8 hex chars).
	hashSuffixLength = 9

	// DefaultName is used when sanitization produces an empty result.
	DefaultName = "default"
)

// RepositoryName sanitizes a bundle name into a repository name.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces every run of non-alphanumeric characters with one '-'
//   - Trims leading/trailing '-'
//   - Truncates to MaxRepositoryNameLength with a hash suffix if too long
//   - Returns DefaultName if the result would be empty
//
// Examples:
//
//	"My Service With Spaces & Special!" -> "my-service-with-spaces-special"
//	"api_gateway.v2"                    -> "api-gateway-v2"
//	"" or "!!!"                         -> "default"
func RepositoryName(s string) string {
	return collapse(s, '-', MaxRepositoryNameLength)
}

// Identifier sanitizes s using '_' as the separator. It is used for keys that
// must be valid in YAML maps, metric labels and NATS subject tokens.
//
//	"github.com/user" -> "github_com_user"
//	"My Project!"     -> "my_project"
func Identifier(s string) string {
	return collapse(s, '_', MaxIdentifierLength)
}

func collapse(s string, sep rune, maxLen int) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteRune(sep)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}

	out := b.String()
	if out == "" {
		return DefaultName
	}
	if len(out) > maxLen {
		out = truncateWithHash(out, sep, maxLen)
	}
	return out
}

// truncateWithHash shortens s to maxLen, appending a hash of the full value
// so distinct long names stay distinct.
func truncateWithHash(s string, sep rune, maxLen int) string {
	hash := sha256.Sum256([]byte(s))
	suffix := string(sep) + hex.EncodeToString(hash[:])[:8]

	truncated := strings.TrimRight(s[:maxLen-hashSuffixLength], string(sep))
	return truncated + suffix
}
