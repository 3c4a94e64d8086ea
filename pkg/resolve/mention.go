package resolve

import (
	"slices"
	"strings"

	"github.com/japaniel/entityscan/pkg/aggregate"
	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
)

// DocumentRef identifies the source record a mention was found in. It is a
// plain identifier; the record itself lives elsewhere.
type DocumentRef string

// Status of a mention inside the pipeline.
type Status int

const (
	StatusPending Status = iota
	StatusAccepted
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	}
	return "pending"
}

// Mention is a candidate reference to a person, organization or location.
// Optional fields are nil until a stage sets them.
type Mention struct {
	Key string
	Tag extract.Tag
	// DetectedTag is the tag the extractors assigned, before any stage
	// reclassified the mention.
	DetectedTag    extract.Tag
	Value          string
	Values         []string
	ResolvedValues []string
	Sources        []string
	Document       DocumentRef

	ResolvedID     *string
	CanonicalName  *string
	Country        *string
	ResolvedSchema *string
	Countries      []string
	// ResolvedBy names the stage that set ResolvedID.
	ResolvedBy string

	Status       Status
	RejectedBy   string
	RejectReason string
	// Passed lists the stages the mention went through without rejection.
	Passed []string
	// Unavailable lists stages skipped because their dependency failed.
	Unavailable []string
}

// FromAggregated builds a pending mention from an aggregated NER result.
func FromAggregated(r aggregate.AggregatedResult, doc DocumentRef) Mention {
	return Mention{
		Key:         r.Key,
		Tag:         r.Tag,
		DetectedTag: r.Tag,
		Value:       normalize.PickName(r.Values),
		Values:      slices.Clone(r.Values),
		Sources:     slices.Clone(r.Sources),
		Document:    doc,
	}
}

// Names returns the cleaned values if a stage produced any, else the raw ones.
func (m Mention) Names() []string {
	if len(m.ResolvedValues) > 0 {
		return m.ResolvedValues
	}
	return m.Values
}

// Caption is the best display name: canonical if known, else the value.
func (m Mention) Caption() string {
	if m.CanonicalName != nil && *m.CanonicalName != "" {
		return *m.CanonicalName
	}
	return m.Value
}

func (m Mention) IsRejected() bool { return m.Status == StatusRejected }

// Reject marks the mention rejected. The first rejection wins.
func (m *Mention) Reject(stage, reason string) {
	if m.Status == StatusRejected {
		return
	}
	m.Status = StatusRejected
	m.RejectedBy = stage
	m.RejectReason = reason
}

// SetResolvedValues replaces the cleaned values (deduplicated, blanks
// dropped) and re-picks Value from them.
func (m *Mention) SetResolvedValues(values []string) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	m.ResolvedValues = out
	if picked := normalize.PickName(out); picked != "" {
		m.Value = picked
	}
}

func ptr(s string) *string { return &s }
