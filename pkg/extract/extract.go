package extract

import (
	"context"
	"strings"
)

// Tag classifies an extraction hit.
type Tag string

const (
	TagPerson   Tag = "PER"
	TagOrg      Tag = "ORG"
	TagLocation Tag = "LOC"
	TagEmail    Tag = "EMAIL"
	TagPhone    Tag = "PHONE"
	TagIBAN     Tag = "IBAN"
	// TagOther is only produced by classifiers; extractors never emit it.
	TagOther Tag = "OTHER"
)

// SourcePattern is the source name of every regex based hit.
const SourcePattern = "pattern"

// IsName reports whether hits with this tag come from NER engines.
func (t Tag) IsName() bool {
	return t == TagPerson || t == TagOrg || t == TagLocation
}

// IsPattern reports whether hits with this tag come from pattern extraction.
func (t Tag) IsPattern() bool {
	return t == TagEmail || t == TagPhone || t == TagIBAN
}

// ParseTag maps the label vocabularies of the usual NER engines onto a Tag.
// The second return value is false for labels this system does not track.
func ParseTag(label string) (Tag, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PER", "PERSON", "B-PER", "I-PER":
		return TagPerson, true
	case "ORG", "ORGANIZATION", "ORGANISATION", "COMPANY", "B-ORG", "I-ORG":
		return TagOrg, true
	case "LOC", "LOCATION", "GPE", "B-LOC", "I-LOC":
		return TagLocation, true
	case "EMAIL":
		return TagEmail, true
	case "PHONE":
		return TagPhone, true
	case "IBAN":
		return TagIBAN, true
	case "OTHER", "MISC":
		return TagOther, true
	}
	return "", false
}

// ExtractionResult is one raw hit produced by an extractor.
type ExtractionResult struct {
	Tag        Tag     `json:"tag"`
	Value      string  `json:"value"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Extractor finds entity references in a chunk of text.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string) ([]ExtractionResult, error)
}
