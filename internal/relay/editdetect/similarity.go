package editdetect

import "strings"

// wordToken strips leading/trailing punctuation from a shingle token so that
// "mat" and "mat!" collide, matching how a human would judge two posts as
// "the same words" regardless of trailing punctuation.
func wordToken(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}

// shingles returns the set of word 3-shingles (contiguous word n-grams) of s.
func shingles(s string, n int) map[string]struct{} {
	raw := strings.Fields(s)
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		if tok := wordToken(w); tok != "" {
			words = append(words, tok)
		}
	}
	set := make(map[string]struct{})
	if len(words) < n {
		if len(words) > 0 {
			set[strings.Join(words, " ")] = struct{}{}
		}
		return set
	}
	for i := 0; i+n <= len(words); i++ {
		set[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return set
}

// JaccardShingle computes Jaccard similarity over word 3-shingles of a and b
// (spec.md §4.B step 3, §8 scenario S6).
func JaccardShingle(a, b string) float64 {
	sa := shingles(a, 3)
	sb := shingles(b, 3)
	if len(sa) == 0 && len(sb) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	intersection := 0
	for k := range sa {
		if _, ok := sb[k]; ok {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
