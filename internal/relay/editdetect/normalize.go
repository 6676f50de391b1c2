// Package editdetect implements the edit-detection engine (spec.md §4.B):
// it recognizes "delete and repost" duplicates on platforms without native
// edit semantics and routes them through update-in-place instead of a
// fresh publish.
package editdetect

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)
	wsPattern  = regexp.MustCompile(`\s+`)
	// zero-width characters and common variation selectors that render
	// invisibly but would otherwise break hash/shingle matching.
	invisiblePattern = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{FE0E}\x{FE0F}]`)
)

// Normalize lowercases, strips URLs, collapses whitespace, strips
// zero-width/variation-selector characters, and trims. Deterministic and
// idempotent (spec.md §8 invariant 5): Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	out := strings.ToLower(text)
	out = urlPattern.ReplaceAllString(out, "")
	out = invisiblePattern.ReplaceAllString(out, "")
	out = wsPattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Hash returns the SHA-256 hex digest of normalized text (spec.md §8
// invariant 6: Hash agrees with Normalize up to SHA-256 collisions).
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
