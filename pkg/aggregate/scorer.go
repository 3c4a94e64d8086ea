package aggregate

import (
	"unicode"
	"unicode/utf8"
)

// TrashScorer rejects values that are unlikely to be names: fewer than two
// letters, mostly digits or punctuation, or longer than MaxLen runes.
type TrashScorer struct {
	MinLetterRatio float64
	MaxLen         int
}

func NewTrashScorer() *TrashScorer {
	return &TrashScorer{MinLetterRatio: 0.6, MaxLen: 120}
}

// Valid is false if any value looks like garbage.
func (s *TrashScorer) Valid(values []string) bool {
	for _, v := range values {
		if s.trash(v) {
			return false
		}
	}
	return true
}

func (s *TrashScorer) trash(v string) bool {
	n := utf8.RuneCountInString(v)
	if s.MaxLen > 0 && n > s.MaxLen {
		return true
	}
	letters, visible := 0, 0
	for _, r := range v {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 2 && !(letters == 1 && visible == 1 && r0IsIdeograph(v)) {
		return true
	}
	return float64(letters)/float64(visible) < s.MinLetterRatio
}

// a single ideograph (e.g. 林) can be a complete name
func r0IsIdeograph(v string) bool {
	for _, r := range v {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.Is(unicode.Han, r)
	}
	return false
}
