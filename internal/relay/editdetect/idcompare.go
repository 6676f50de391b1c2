package editdetect

import (
	"math/big"
	"regexp"
)

var numericIDPattern = regexp.MustCompile(`^\d+$`)

// IsNewer reports whether candidate is a newer platform ID than existing.
// Numeric IDs (snowflake-style) compare numerically; everything else
// (base32-style AT-Protocol TIDs) compares lexicographically, since TIDs
// are constructed to sort lexicographically by creation time (spec.md §4.B
// step 2, §9 "Platform-ID comparison").
func IsNewer(candidate, existing string) bool {
	if numericIDPattern.MatchString(candidate) && numericIDPattern.MatchString(existing) {
		c, ok1 := new(big.Int).SetString(candidate, 10)
		e, ok2 := new(big.Int).SetString(existing, 10)
		if ok1 && ok2 {
			return c.Cmp(e) > 0
		}
	}
	return candidate > existing
}
