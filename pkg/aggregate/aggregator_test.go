package aggregate

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/entityscan/pkg/extract"
)

func collect(a *Aggregator) []AggregatedResult {
	return slices.Collect(a.Results())
}

func per(value string, conf float64) extract.ExtractionResult {
	return extract.ExtractionResult{Tag: extract.TagPerson, Value: value, Source: "spacy", Confidence: conf}
}

func TestAggregatorMergesByFingerprint(t *testing.T) {
	a := New(Options{})
	ok, _ := a.Add(per("Mr. John Doe", 0.9))
	require.True(t, ok)
	ok, _ = a.Add(per("John Doe", 0.7))
	require.True(t, ok)

	results := collect(a)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "doe+john", r.Key)
	assert.Equal(t, extract.TagPerson, r.Tag)
	assert.Equal(t, 2, r.Count)
	assert.Equal(t, 0.9, r.MaxConfidence)
	assert.Equal(t, []string{"Mr. John Doe", "John Doe"}, r.Values)
	assert.Equal(t, []string{"spacy"}, r.Sources)
}

func TestAggregatorMergeIsOrderIndependent(t *testing.T) {
	inputs := []extract.ExtractionResult{
		per("JOHN DOE", 0.4),
		{Tag: extract.TagPerson, Value: "John Doe", Source: "flair", Confidence: 0.95},
		per("john doe", 0.6),
		per("Doe, John", 0.2),
	}
	for _, perm := range [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}} {
		a := New(Options{})
		for _, i := range perm {
			a.Add(inputs[i])
		}
		results := collect(a)
		require.Len(t, results, 1)
		assert.Equal(t, 4, results[0].Count)
		assert.Equal(t, 0.95, results[0].MaxConfidence)
		assert.ElementsMatch(t, []string{"JOHN DOE", "John Doe", "john doe", "Doe, John"}, results[0].Values)
		assert.ElementsMatch(t, []string{"spacy", "flair"}, results[0].Sources)
	}
}

func TestAggregatorSeparatesTags(t *testing.T) {
	a := New(Options{})
	a.Add(per("Jordan", 0.9))
	a.Add(extract.ExtractionResult{Tag: extract.TagLocation, Value: "Jordan", Source: "spacy", Confidence: 0.9})
	assert.Len(t, collect(a), 2)
}

func TestAggregatorInsertionOrder(t *testing.T) {
	a := New(Options{})
	for _, v := range []string{"Charlie Brown", "Alice Smith", "Bob Jones", "Alice Smith"} {
		a.Add(per(v, 1))
	}
	var keys []string
	for r := range a.Results() {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"brown+charlie", "alice+smith", "bob+jones"}, keys)
}

func TestAggregatorRejectsInvalidKeys(t *testing.T) {
	a := New(Options{})
	ok, reason := a.Add(per("   ", 0.9))
	assert.False(t, ok)
	assert.Equal(t, ReasonInvalidKey, reason)

	ok, reason = a.Add(extract.ExtractionResult{Tag: extract.TagIBAN, Value: "GB99MIDL07009312345678", Source: extract.SourcePattern, Confidence: 1})
	assert.False(t, ok)
	assert.Equal(t, ReasonInvalidKey, reason)

	assert.Empty(t, collect(a))
	assert.Equal(t, 2, a.Stats().Rejected[ReasonInvalidKey])
}

func TestAggregatorEmptyInput(t *testing.T) {
	assert.Empty(t, collect(New(Options{UseConfidence: true, Threshold: 0.5})))
}

func TestAggregatorMaxResults(t *testing.T) {
	a := New(Options{MaxResults: 2})
	a.Add(per("Alice Smith", 1))
	a.Add(per("Bob Jones", 1))
	ok, reason := a.Add(per("Carol White", 1))
	assert.False(t, ok)
	assert.Equal(t, ReasonMaxResults, reason)

	ok, _ = a.Add(per("ALICE SMITH", 1))
	assert.True(t, ok, "existing keys still merge at the cap")
	assert.Len(t, collect(a), 2)
}

func TestConfidenceFilterDropsLowResults(t *testing.T) {
	var filtered []string
	a := New(Options{
		UseConfidence: true,
		Threshold:     0.5,
		OnFiltered: func(r AggregatedResult, reason string) {
			filtered = append(filtered, r.Key+":"+reason)
		},
	})
	a.Add(per("John Doe", 0.3))
	a.Add(per("John Doe", 0.4))

	assert.Empty(t, collect(a))
	assert.Equal(t, []string{"doe+john:" + ReasonLowConfidence}, filtered)
}

func TestConfidenceFilterSparesPatterns(t *testing.T) {
	a := New(Options{UseConfidence: true, Threshold: 0.99})
	a.Add(extract.ExtractionResult{Tag: extract.TagIBAN, Value: "GR16 0110 1050 0000 1054 7023 795", Source: extract.SourcePattern, Confidence: 0.1})
	a.Add(extract.ExtractionResult{Tag: extract.TagEmail, Value: "jane@EXAMPLE.org", Source: extract.SourcePattern, Confidence: 1})

	results := collect(a)
	require.Len(t, results, 2)
	assert.Equal(t, "GR1601101050000010547023795", results[0].Key)
	assert.Equal(t, "jane@example.org", results[1].Key)
}

func TestConfidenceFilterDisabled(t *testing.T) {
	a := New(Options{UseConfidence: false, Threshold: 0.9})
	a.Add(per("John Doe", 0.1))
	assert.Len(t, collect(a), 1)
}

func TestConfidenceThresholdMonotonic(t *testing.T) {
	inputs := make([]extract.ExtractionResult, 0, 20)
	for i := 0; i < 20; i++ {
		inputs = append(inputs, per(fmt.Sprintf("Person Number%c", 'a'+i), float64(i)/20))
	}
	last := len(inputs) + 1
	for _, threshold := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		a := New(Options{UseConfidence: true, Threshold: threshold})
		for _, in := range inputs {
			a.Add(in)
		}
		n := len(collect(a))
		assert.LessOrEqual(t, n, last, "threshold %v", threshold)
		last = n
	}
}

func TestTrashScorer(t *testing.T) {
	s := NewTrashScorer()
	assert.True(t, s.Valid([]string{"John Doe", "林"}))
	assert.False(t, s.Valid([]string{"John Doe", "12/34/56"}))
	assert.False(t, s.Valid([]string{"X"}))

	a := New(Options{UseConfidence: true, Threshold: 0, Scorer: s})
	a.Add(per("A1234567", 0.9))
	a.Add(per("Jane Doe", 0.9))
	results := collect(a)
	require.Len(t, results, 1)
	assert.Equal(t, "doe+jane", results[0].Key)
}

func TestResultsSealAggregator(t *testing.T) {
	a := New(Options{})
	a.Add(per("John Doe", 1))
	assert.Len(t, collect(a), 1)
	assert.Empty(t, collect(a), "results are not restartable")

	ok, reason := a.Add(per("Jane Doe", 1))
	assert.False(t, ok)
	assert.Equal(t, ReasonSealed, reason)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key(extract.TagPerson, "JOHN DOE"), Key(extract.TagPerson, "John Doe"))
	assert.Equal(t, "+15417543010", Key(extract.TagPhone, "+1 541 754 3010"))
	assert.Equal(t, "", Key(extract.TagPhone, "754-3010"))
	assert.Equal(t, "+15417543010", MakeKey(nil, "US", extract.TagPhone, "(541) 754-3010"))
	assert.Equal(t, "", Key(extract.TagOther, "anything"))
}
