package resolve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/japaniel/entityscan/pkg/aggregate"
	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/trace"
)

type fakeClassifier struct {
	result Classification
	err    error
	calls  atomic.Int32
}

func (f *fakeClassifier) Classify(ctx context.Context, value string) (Classification, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type fakeValidator struct {
	ok     bool
	err    error
	calls  atomic.Int32
	tokens []string
	mu     sync.Mutex
}

func (f *fakeValidator) Validate(ctx context.Context, tokens []string) (bool, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.tokens = tokens
	f.mu.Unlock()
	return f.ok, f.err
}

type fakeGazetteer struct {
	places map[string]Location
	err    error
	calls  atomic.Int32
}

func (f *fakeGazetteer) Lookup(ctx context.Context, value string) (Location, bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Location{}, false, f.err
	}
	loc, ok := f.places[value]
	return loc, ok, nil
}

type fakeLookup struct {
	match Match
	found bool
	err   error
	calls atomic.Int32
}

func (f *fakeLookup) Lookup(ctx context.Context, value string, tag extract.Tag) (Match, bool, error) {
	f.calls.Add(1)
	return f.match, f.found, f.err
}

// blockingClassifier waits for its context to end.
type blockingClassifier struct{}

func (blockingClassifier) Classify(ctx context.Context, value string) (Classification, error) {
	<-ctx.Done()
	return Classification{}, ctx.Err()
}

func mentionsFrom(t *testing.T, results ...extract.ExtractionResult) []Mention {
	t.Helper()
	agg := aggregate.New(aggregate.Options{UseConfidence: true, Threshold: 0.5})
	for _, r := range results {
		agg.Add(r)
	}
	var out []Mention
	for r := range agg.Results() {
		out = append(out, FromAggregated(r, "doc-1"))
	}
	return out
}

func TestRigourOnlyAcceptsPerson(t *testing.T) {
	mentions := mentionsFrom(t,
		extract.ExtractionResult{Tag: extract.TagPerson, Value: "Mr. John Doe", Source: "spacy", Confidence: 0.9},
		extract.ExtractionResult{Tag: extract.TagPerson, Value: "John Doe", Source: "spacy", Confidence: 0.7},
	)
	require.Len(t, mentions, 1)

	p, err := Build(DefaultConfig(), Services{})
	require.NoError(t, err)
	assert.Equal(t, []string{StageRigour}, p.Stages())

	m, err := p.Resolve(context.Background(), mentions[0])
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, m.Status)
	assert.Equal(t, extract.TagPerson, m.Tag)
	assert.Equal(t, "John Doe", m.Value)
	assert.Equal(t, []string{"John Doe"}, m.ResolvedValues)
	assert.Equal(t, DocumentRef("doc-1"), m.Document)
	assert.Nil(t, m.ResolvedID)
}

func TestGeonamesResolvesLocation(t *testing.T) {
	mentions := mentionsFrom(t,
		extract.ExtractionResult{Tag: extract.TagLocation, Value: "Berlin", Source: "spacy", Confidence: 0.6},
	)
	require.Len(t, mentions, 1)

	gaz := &fakeGazetteer{places: map[string]Location{"Berlin": {Name: "Germany", Country: "DE"}}}
	cfg := DefaultConfig()
	cfg.Geonames = true
	p, err := Build(cfg, Services{Gazetteer: gaz})
	require.NoError(t, err)

	m, err := p.Resolve(context.Background(), mentions[0])
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, m.Status)
	require.NotNil(t, m.CanonicalName)
	assert.Equal(t, "Germany", *m.CanonicalName)
	require.NotNil(t, m.Country)
	assert.Equal(t, "DE", *m.Country)
}

func TestClassifierRejectsLowConfidence(t *testing.T) {
	mentions := mentionsFrom(t,
		extract.ExtractionResult{Tag: extract.TagOrg, Value: "X", Source: "spacy", Confidence: 0.95},
	)
	require.Len(t, mentions, 1)

	clf := &fakeClassifier{result: Classification{Tag: extract.TagOrg, Confidence: 0.1}}
	val := &fakeValidator{ok: true}
	look := &fakeLookup{found: true, match: Match{ID: "q1", Score: 1}}
	cfg := DefaultConfig()
	cfg.Classifier, cfg.Validator, cfg.Lookup = true, true, true
	p, err := Build(cfg, Services{Classifier: clf, Validator: val, Lookup: look})
	require.NoError(t, err)

	m, err := p.Resolve(context.Background(), mentions[0])
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, m.Status)
	assert.Equal(t, StageClassifier, m.RejectedBy)
	assert.Equal(t, ReasonLowConfidence, m.RejectReason)
	assert.Equal(t, []string{StageRigour}, m.Passed)

	assert.Equal(t, int32(1), clf.calls.Load())
	assert.Zero(t, val.calls.Load(), "no stage runs after a rejection")
	assert.Zero(t, look.calls.Load(), "no stage runs after a rejection")
	assert.Nil(t, m.ResolvedID)
}

func TestBuildOrdersStages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classifier, cfg.Validator, cfg.Geonames, cfg.Lookup = true, true, true, true
	p, err := Build(cfg, Services{
		Classifier: &fakeClassifier{},
		Validator:  &fakeValidator{},
		Gazetteer:  &fakeGazetteer{},
		Lookup:     &fakeLookup{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{StageRigour, StageClassifier, StageValidator, StageGeonames, StageLookup}, p.Stages())
}

func TestBuildFailsOnMissingService(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geonames = true
	cfg.Lookup = true
	_, err := Build(cfg, Services{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StageGeonames, cerr.Stage)
	assert.Contains(t, err.Error(), StageLookup)
}

func TestDisablingGeonamesLeavesPersonsAlone(t *testing.T) {
	person := mentionsFrom(t,
		extract.ExtractionResult{Tag: extract.TagPerson, Value: "Jane Smith", Source: "spacy", Confidence: 0.8},
	)[0]
	look := &fakeLookup{found: true, match: Match{ID: "p-1", Caption: "Jane Smith", Schema: "Person", Score: 0.95}}

	with := DefaultConfig()
	with.Geonames, with.Lookup = true, true
	without := DefaultConfig()
	without.Lookup = true

	p1, err := Build(with, Services{Gazetteer: &fakeGazetteer{}, Lookup: look})
	require.NoError(t, err)
	p2, err := Build(without, Services{Lookup: look})
	require.NoError(t, err)

	a, err := p1.Resolve(context.Background(), person)
	require.NoError(t, err)
	b, err := p2.Resolve(context.Background(), person)
	require.NoError(t, err)

	a.Passed, b.Passed = nil, nil
	assert.Equal(t, b, a)
	assert.Equal(t, "p-1", *a.ResolvedID)
	assert.Equal(t, StageLookup, a.ResolvedBy)
}

func TestUnavailableStageIsSkippedByDefault(t *testing.T) {
	m := mentionsFrom(t,
		extract.ExtractionResult{Tag: extract.TagOrg, Value: "Acme Ltd", Source: "spacy", Confidence: 0.9},
	)[0]
	tr := trace.New(nil, nil)
	look := &fakeLookup{err: errors.New("connection refused")}
	cfg := DefaultConfig()
	cfg.Lookup = true
	p, err := Build(cfg, Services{Lookup: look}, WithTracer(tr))
	require.NoError(t, err)

	out, err := p.Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Equal(t, []string{StageLookup}, out.Unavailable)
	assert.Nil(t, out.ResolvedID)
	assert.Empty(t, out.RejectedBy, "unavailability is not a rejection")

	s := tr.Summary()
	assert.Equal(t, 1, s.UnavailableByStage[StageLookup])
	assert.Equal(t, 1, s.ResolutionAccepted)
}

func TestUnavailableStageFailsInStrictMode(t *testing.T) {
	m := mentionsFrom(t,
		extract.ExtractionResult{Tag: extract.TagOrg, Value: "Acme Ltd", Source: "spacy", Confidence: 0.9},
	)[0]
	cfg := DefaultConfig()
	cfg.Lookup = true
	cfg.Strict = true
	p, err := Build(cfg, Services{Lookup: &fakeLookup{err: errors.New("503")}})
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageUnavailable)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageLookup, serr.Stage)
}

func TestStageTimeoutReportsUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := Mention{Key: "acme", Tag: extract.TagOrg, Value: "Acme", Values: []string{"Acme"}}
	p := New([]Stage{NewClassifierStage(blockingClassifier{}, 0.5, true)}, WithTimeout(20*time.Millisecond))

	out, err := p.Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Equal(t, []string{StageClassifier}, out.Unavailable)
}

func TestCancelledContextDoesNotInterruptMention(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gaz := &fakeGazetteer{places: map[string]Location{"Paris": {Name: "Paris", Country: "FR"}}}
	p := New([]Stage{NewGeonamesStage(gaz, nil, false)})
	out, err := p.Resolve(ctx, Mention{Key: "paris", Tag: extract.TagLocation, Value: "Paris", Values: []string{"Paris"}})
	require.NoError(t, err)
	require.NotNil(t, out.Country)
	assert.Equal(t, "FR", *out.Country)
}

func TestGeonamesMissStrictAndLenient(t *testing.T) {
	m := Mention{Key: "atlantis", Tag: extract.TagLocation, Value: "Atlantis", Values: []string{"Atlantis"}}
	gaz := &fakeGazetteer{}

	lenient := New([]Stage{NewGeonamesStage(gaz, nil, false)})
	out, err := lenient.Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Nil(t, out.CanonicalName)

	strict := New([]Stage{NewGeonamesStage(gaz, nil, true)})
	out, err = strict.Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, StageGeonames, out.RejectedBy)
	assert.Equal(t, ReasonLocationNotFound, out.RejectReason)
}

func TestRejectedMentionIsNotRevived(t *testing.T) {
	m := Mention{Key: "x", Tag: extract.TagOrg, Value: "X"}
	m.Reject(StageClassifier, ReasonLowConfidence)
	m.Reject(StageValidator, ReasonNameValidation)
	assert.Equal(t, StageClassifier, m.RejectedBy)

	p, err := Build(DefaultConfig(), Services{})
	require.NoError(t, err)
	out, err := p.Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, m, out)
}

func TestConcurrentResolution(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := trace.New(nil, nil)
	look := &fakeLookup{found: true, match: Match{ID: "o-1", Caption: "Acme Ltd", Schema: "Company", Score: 0.9}}
	p := New([]Stage{NewRigourStage(nil), NewLookupStage(look, DefaultLookupThreshold)}, WithTracer(tr))

	const n = 50
	results := make([]Mention, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := Mention{Key: "acme+ltd", Tag: extract.TagOrg, Value: "The Acme Ltd", Values: []string{"The Acme Ltd"}}
			out, err := p.Resolve(context.Background(), m)
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	for _, m := range results {
		assert.Equal(t, StatusAccepted, m.Status)
		assert.Equal(t, "o-1", *m.ResolvedID)
	}
	assert.Equal(t, n, tr.Summary().ResolutionAccepted)
	assert.Equal(t, int32(n), look.calls.Load())
}
