package normalize

import (
	"strings"
	"unicode"
)

// PickName chooses the most representative surface form from a set of
// variants: the folded form shared by most variants wins, then mixed case
// over all-caps or all-lower, then the longer value. Ties keep input order.
func PickName(values []string) string {
	if len(values) == 0 {
		return ""
	}
	support := make(map[string]int, len(values))
	for _, v := range values {
		support[Fold(CollapseSpaces(v))]++
	}

	best, bestScore := "", -1
	for _, v := range values {
		v = CollapseSpaces(v)
		if v == "" {
			continue
		}
		score := support[Fold(v)]*1000 + casing(v)*100 + min(len(v), 99)
		if score > bestScore {
			best, bestScore = v, score
		}
	}
	return best
}

func casing(v string) int {
	hasUpper, hasLower := false, false
	for _, r := range v {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return 2
	}
	if strings.IndexFunc(v, unicode.IsLetter) >= 0 && !hasUpper && !hasLower {
		// scripts without case
		return 2
	}
	return 1
}
