// Package fuzzy implements the string similarity used to resolve free-text
// titles and names to stored entities.
package fuzzy

import "strings"

// DefaultThreshold is the score a candidate must strictly exceed to count as a match.
const DefaultThreshold = 0.5

// Similarity returns the Sørensen–Dice coefficient over the character bigrams
// of each whitespace-separated word of a and b, compared case-insensitively.
// Bigrams never span a word boundary, the same way APOC's
// text.sorensenDiceSimilarity splits its input. The result is symmetric and
// lies in [0, 1]; identical strings score 1.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1
	}

	left := bigrams(a)
	right := bigrams(b)
	if len(left)+len(right) == 0 {
		return 0
	}

	counts := make(map[string]int, len(left))
	for _, bg := range left {
		counts[bg]++
	}

	shared := 0
	for _, bg := range right {
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}

	return float64(2*shared) / float64(len(left)+len(right))
}

// Matches reports whether score clears threshold.
func Matches(score, threshold float64) bool {
	return score > threshold
}

func bigrams(s string) []string {
	var out []string
	for _, word := range strings.Fields(s) {
		runes := []rune(word)
		for i := 0; i+1 < len(runes); i++ {
			out = append(out, string(runes[i:i+2]))
		}
	}
	return out
}
