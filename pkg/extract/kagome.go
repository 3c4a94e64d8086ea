package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// SourceKagome is the source name of hits from the Japanese morphological analyzer.
const SourceKagome = "kagome"

// Token represents a single analyzed unit of text.
type Token struct {
	Surface       string   // The text as it appears (e.g. "東京")
	BaseForm      string   // The dictionary form
	Reading       string   // The pronunciation in katakana
	PartsOfSpeech []string // Kagome IPA features, e.g. ["名詞", "固有名詞", "地域", "一般"]
}

// class returns the proper noun class ("人名", "組織", "地域") of the token,
// or "" when the token is not a proper noun.
func (t Token) class() string {
	if len(t.PartsOfSpeech) > 2 && t.PartsOfSpeech[0] == "名詞" && t.PartsOfSpeech[1] == "固有名詞" {
		return t.PartsOfSpeech[2]
	}
	return ""
}

// isPlaceSuffix matches suffixes such as 都, 県, 市 that extend a place name.
func (t Token) isPlaceSuffix() bool {
	return len(t.PartsOfSpeech) > 2 && t.PartsOfSpeech[0] == "名詞" && t.PartsOfSpeech[1] == "接尾" && t.PartsOfSpeech[2] == "地域"
}

var ipaClasses = map[string]Tag{
	"人名": TagPerson,
	"組織": TagOrg,
	"地域": TagLocation,
}

// KagomeExtractor tags Japanese proper nouns using the IPA dictionary.
// Consecutive proper noun tokens of the same class form one span, so
// 山田 (姓) + 太郎 (名) yields a single person hit.
type KagomeExtractor struct {
	t *tokenizer.Tokenizer
	// Confidence is attached to every hit; the dictionary carries no scores.
	Confidence float64
}

// NewKagomeExtractor creates a new tokenizer instance.
func NewKagomeExtractor(confidence float64) (*KagomeExtractor, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	if confidence <= 0 {
		confidence = 0.9
	}
	return &KagomeExtractor{t: t, Confidence: confidence}, nil
}

func (k *KagomeExtractor) Name() string { return SourceKagome }

// Tokens breaks text into tokens with readings and base forms.
func (k *KagomeExtractor) Tokens(text string) []Token {
	var result []Token
	for _, token := range k.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}
		features := token.Features()

		base := token.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		result = append(result, Token{
			Surface:       token.Surface,
			BaseForm:      base,
			Reading:       reading,
			PartsOfSpeech: features,
		})
	}
	return result
}

// Extract returns nothing for text without Japanese script.
func (k *KagomeExtractor) Extract(ctx context.Context, text string) ([]ExtractionResult, error) {
	if !hasJapanese(text) {
		return nil, nil
	}
	var out []ExtractionResult
	for _, sentence := range splitSentences(text) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		out = append(out, k.spans(k.Tokens(sentence))...)
	}
	return out, nil
}

func (k *KagomeExtractor) spans(tokens []Token) []ExtractionResult {
	var out []ExtractionResult
	var current strings.Builder
	currentClass := ""

	flush := func() {
		if current.Len() > 0 {
			out = append(out, ExtractionResult{
				Tag:        ipaClasses[currentClass],
				Value:      current.String(),
				Source:     SourceKagome,
				Confidence: k.Confidence,
			})
		}
		current.Reset()
		currentClass = ""
	}

	for _, tok := range tokens {
		class := tok.class()
		switch {
		case class != "" && class == currentClass:
			current.WriteString(tok.Surface)
		case class != "":
			flush()
			if _, ok := ipaClasses[class]; ok {
				currentClass = class
				current.WriteString(tok.Surface)
			}
		case currentClass == "地域" && tok.isPlaceSuffix():
			current.WriteString(tok.Surface)
			flush()
		default:
			flush()
		}
	}
	flush()
	return out
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		// 。(3002), ！(FF01), ？(FF1F)
		if r == '。' || r == '！' || r == '？' || r == '\n' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func hasJapanese(text string) bool {
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}
