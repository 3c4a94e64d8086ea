package extract

import (
	"context"
	"regexp"
	"strings"
)

var (
	EmailRegex = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	PhoneRegex = regexp.MustCompile(`(\+?[\d\-\(\)\/\s]{5,}\d{2})`)
	IBANRegex  = regexp.MustCompile(`(?i)\b([a-zA-Z]{2} ?[0-9]{2} ?[a-zA-Z0-9]{4} ?[0-9]{7} ?([a-zA-Z0-9]?){0,16})\b`)
)

type pattern struct {
	re  *regexp.Regexp
	tag Tag
}

var patterns = []pattern{
	{EmailRegex, TagEmail},
	{PhoneRegex, TagPhone},
	{IBANRegex, TagIBAN},
}

// PatternExtractor finds emails, phone numbers and IBANs.
// Hits carry the raw match; canonicalization happens at aggregation.
type PatternExtractor struct{}

func NewPatternExtractor() *PatternExtractor { return &PatternExtractor{} }

func (p *PatternExtractor) Name() string { return SourcePattern }

func (p *PatternExtractor) Extract(ctx context.Context, text string) ([]ExtractionResult, error) {
	var out []ExtractionResult
	for _, pt := range patterns {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, m := range pt.re.FindAllString(text, -1) {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			out = append(out, ExtractionResult{
				Tag:        pt.tag,
				Value:      m,
				Source:     SourcePattern,
				Confidence: 1.0,
			})
		}
	}
	return out, nil
}
