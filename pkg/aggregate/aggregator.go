package aggregate

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
)

// DefaultMaxResults bounds the number of distinct keys per source record.
const DefaultMaxResults = 10_000

// Rejection reasons reported by Add and the confidence filter.
const (
	ReasonInvalidKey    = "invalid_key"
	ReasonMaxResults    = "max_results_exceeded"
	ReasonSealed        = "sealed"
	ReasonLowConfidence = "low_confidence"
	ReasonTrash         = "trash"
)

// AggregatedResult groups every hit sharing a (tag, key) identity.
type AggregatedResult struct {
	Key           string
	Tag           extract.Tag
	Values        []string // distinct raw surface forms, first-seen order
	Sources       []string // distinct sources, first-seen order
	MaxConfidence float64
	Count         int
}

func (r *AggregatedResult) merge(res extract.ExtractionResult) {
	if !slices.Contains(r.Values, res.Value) {
		r.Values = append(r.Values, res.Value)
	}
	if !slices.Contains(r.Sources, res.Source) {
		r.Sources = append(r.Sources, res.Source)
	}
	if r.Count == 0 || res.Confidence > r.MaxConfidence {
		r.MaxConfidence = res.Confidence
	}
	r.Count++
}

// Scorer is an optional second opinion on NER results, e.g. a model that
// tells names from extraction garbage.
type Scorer interface {
	Valid(values []string) bool
}

// Options configures an Aggregator.
type Options struct {
	// UseConfidence enables the confidence filter for NER tags.
	UseConfidence bool
	Threshold     float64
	// Scorer is consulted for NER tags when UseConfidence is set. nil skips it.
	Scorer     Scorer
	MaxResults int
	// PhoneRegion is the default region for numbers without an international prefix.
	PhoneRegion string
	Dict        *normalize.Dictionary
	// OnFiltered is called for every result the confidence filter drops.
	OnFiltered func(r AggregatedResult, reason string)
}

type identity struct {
	tag extract.Tag
	key string
}

// Aggregator deduplicates the extraction hits of one source record.
// It is not safe for concurrent use; funnel concurrent extractors through a
// single goroutine.
type Aggregator struct {
	opts    Options
	index   map[identity]int
	results []*AggregatedResult
	drained bool

	accepted int
	rejected map[string]int
}

func New(opts Options) *Aggregator {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Dict == nil {
		opts.Dict = normalize.Default()
	}
	return &Aggregator{
		opts:     opts,
		index:    make(map[identity]int),
		rejected: make(map[string]int),
	}
}

// Key computes the grouping key of a value: a name fingerprint for NER tags,
// the canonical form for pattern tags. "" means the value cannot be keyed.
func Key(tag extract.Tag, value string) string {
	return MakeKey(normalize.Default(), "", tag, value)
}

// MakeKey is Key with an explicit dictionary and phone region.
func MakeKey(dict *normalize.Dictionary, phoneRegion string, tag extract.Tag, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	switch tag {
	case extract.TagPerson, extract.TagOrg, extract.TagLocation:
		if dict == nil {
			dict = normalize.Default()
		}
		return dict.Fingerprint(value)
	case extract.TagEmail:
		return normalize.Email(value)
	case extract.TagPhone:
		return normalize.Phone(value, phoneRegion)
	case extract.TagIBAN:
		return normalize.IBAN(value)
	}
	return ""
}

// Add merges a hit into the result for its (tag, key). It reports whether the
// hit was accepted and, if not, why.
func (a *Aggregator) Add(res extract.ExtractionResult) (bool, string) {
	if a.drained {
		return a.reject(ReasonSealed)
	}
	key := MakeKey(a.opts.Dict, a.opts.PhoneRegion, res.Tag, res.Value)
	if key == "" {
		return a.reject(ReasonInvalidKey)
	}
	id := identity{tag: res.Tag, key: key}
	idx, ok := a.index[id]
	if !ok {
		if len(a.results) >= a.opts.MaxResults {
			return a.reject(ReasonMaxResults)
		}
		idx = len(a.results)
		a.index[id] = idx
		a.results = append(a.results, &AggregatedResult{Key: key, Tag: res.Tag})
	}
	res.Value = strings.TrimSpace(res.Value)
	a.results[idx].merge(res)
	a.accepted++
	return true, ""
}

func (a *Aggregator) reject(reason string) (bool, string) {
	a.rejected[reason]++
	return false, reason
}

// Len is the number of distinct identities seen so far.
func (a *Aggregator) Len() int { return len(a.results) }

// Results yields the aggregated results in first-seen order, dropping NER
// results that fail the confidence filter. The sequence can be consumed once;
// after that the aggregator accepts no further hits.
func (a *Aggregator) Results() iter.Seq[AggregatedResult] {
	return func(yield func(AggregatedResult) bool) {
		if a.drained {
			return
		}
		a.drained = true
		for _, r := range a.results {
			if ok, reason := a.passes(r); !ok {
				if a.opts.OnFiltered != nil {
					a.opts.OnFiltered(*r, reason)
				}
				continue
			}
			if !yield(*r) {
				return
			}
		}
	}
}

func (a *Aggregator) passes(r *AggregatedResult) (bool, string) {
	if !a.opts.UseConfidence || !r.Tag.IsName() {
		return true, ""
	}
	if r.MaxConfidence < a.opts.Threshold {
		return false, ReasonLowConfidence
	}
	if a.opts.Scorer != nil && !a.opts.Scorer.Valid(r.Values) {
		return false, ReasonTrash
	}
	return true, ""
}

// Stats summarizes Add outcomes.
type Stats struct {
	Accepted int
	Rejected map[string]int
	Unique   int
}

func (a *Aggregator) Stats() Stats {
	return Stats{Accepted: a.accepted, Rejected: maps.Clone(a.rejected), Unique: len(a.results)}
}
