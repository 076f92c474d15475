package suggest

import (
	"fmt"

	"github.com/agext/levenshtein"
)

// Closest returns the candidate nearest to given, or "" if none is within
// a third of the longer string's length (but always allowing two edits).
func Closest(given string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.Distance(given, c, nil)
		limit := max(len(given), len(c)) / 3
		if limit < 2 {
			limit = 2
		}
		if d > limit {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Hint formats a "did you mean" suffix, or "" when nothing is close.
func Hint(given string, candidates []string) string {
	if c := Closest(given, candidates); c != "" {
		return fmt.Sprintf(" (did you mean %q?)", c)
	}
	return ""
}
