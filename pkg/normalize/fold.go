package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// combining kana voicing marks are Mn but carry meaning, so they survive folding.
var diacritic = runes.Predicate(func(r rune) bool {
	return unicode.Is(unicode.Mn, r) && r != 0x3099 && r != 0x309A
})

// Fold lower-cases s, strips diacritics, folds full/half width forms and maps
// katakana onto hiragana.
func Fold(s string) string {
	// transform.Chain keeps state, so it cannot be shared between goroutines.
	t := transform.Chain(width.Fold, norm.NFD, runes.Remove(diacritic), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return ToHiragana(strings.ToLower(out))
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	rs := []rune(s)
	for i, r := range rs {
		if r >= 0x30A1 && r <= 0x30F6 {
			rs[i] = r - 0x60
		}
	}
	return string(rs)
}

// Tokens splits a folded name on everything that is not a letter or digit.
func Tokens(name string) []string {
	return strings.FieldsFunc(Fold(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r)
	})
}

// CollapseSpaces trims s and reduces every whitespace run to a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint is the token-order-insensitive identity of a name, e.g.
// "Mr. John Doe" and "DOE, John" both map to "doe+john". Leading honorifics
// and articles are dropped and legal form variants are unified. An empty
// result means the name carries no usable tokens.
func Fingerprint(name string) string {
	return Default().Fingerprint(name)
}

// Fingerprint uses the dictionary's prefixes and legal forms.
func (d *Dictionary) Fingerprint(name string) string {
	tokens := Tokens(name)
	for len(tokens) > 1 && d.isPrefixToken(tokens[0]) {
		tokens = tokens[1:]
	}
	for i, t := range tokens {
		if canon, ok := d.orgTypes[t]; ok {
			tokens[i] = canon
		}
	}
	sort.Strings(tokens)
	return strings.Join(tokens, "+")
}
