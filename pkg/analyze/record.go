package analyze

import (
	"errors"
	"fmt"

	"github.com/japaniel/entityscan/pkg/extract"
)

// ErrMissingID is returned for records without an id.
var ErrMissingID = errors.New("record has no id")

// TextProps are the record properties whose values are analyzed.
var TextProps = []string{"title", "summary", "description", "bodyText", "text", "notes"}

// Extraction is a hit computed before the record reached us, usually by an
// external NER engine. A missing confidence counts as 1.0.
type Extraction struct {
	Tag        string   `json:"tag"`
	Value      string   `json:"value"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Record is one source document.
type Record struct {
	ID          string              `json:"id"`
	Schema      string              `json:"schema,omitempty"`
	Dataset     string              `json:"dataset,omitempty"`
	Properties  map[string][]string `json:"properties,omitempty"`
	Languages   []string            `json:"languages,omitempty"`
	Extractions []Extraction        `json:"extractions,omitempty"`
}

// Texts returns the analyzable text values in a stable order.
func (r Record) Texts() []string {
	var out []string
	for _, prop := range TextProps {
		for _, v := range r.Properties[prop] {
			if v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// Precomputed converts the carried extractions, grouped by source. Hits with
// unknown tags are dropped.
func (r Record) Precomputed() (map[string][]extract.ExtractionResult, error) {
	if len(r.Extractions) == 0 {
		return nil, nil
	}
	out := make(map[string][]extract.ExtractionResult)
	for i, x := range r.Extractions {
		tag, ok := extract.ParseTag(x.Tag)
		if !ok || tag == extract.TagOther {
			continue
		}
		conf := 1.0
		if x.Confidence != nil {
			conf = *x.Confidence
		}
		if conf < 0 || conf > 1 {
			return nil, fmt.Errorf("extraction %d of %s: confidence %v out of range", i, r.ID, conf)
		}
		source := x.Source
		if source == "" {
			source = "external"
		}
		out[source] = append(out[source], extract.ExtractionResult{
			Tag:        tag,
			Value:      x.Value,
			Source:     source,
			Confidence: conf,
		})
	}
	return out, nil
}
