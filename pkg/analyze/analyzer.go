// Package analyze runs extraction, aggregation, resolution and entity
// creation for one source record at a time.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/entityscan/pkg/aggregate"
	"github.com/japaniel/entityscan/pkg/annotate"
	"github.com/japaniel/entityscan/pkg/emit"
	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
	"github.com/japaniel/entityscan/pkg/resolve"
	"github.com/japaniel/entityscan/pkg/trace"
)

// DefaultSchema is used for records that do not name one.
const DefaultSchema = "Document"

const defaultWorkers = 4

type Options struct {
	Extractors []extract.Extractor
	Aggregate  aggregate.Options
	Pipeline   *resolve.Pipeline
	Dict       *normalize.Dictionary
	Annotate   bool
	// Workers bounds concurrent extractor runs and concurrent resolutions.
	Workers int
	Tracer  *trace.Tracer
	Logger  *zap.Logger
}

// Analyzer is safe for concurrent use; every call to Analyze owns its own
// aggregator.
type Analyzer struct {
	extractors []extract.Extractor
	aggOpts    aggregate.Options
	pipeline   *resolve.Pipeline
	factory    *emit.Factory
	annotate   bool
	workers    int
	tracer     *trace.Tracer
	logger     *zap.Logger
}

func New(opts Options) (*Analyzer, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("analyzer needs a resolution pipeline")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dict == nil {
		opts.Dict = normalize.Default()
	}
	opts.Aggregate.Dict = opts.Dict

	a := &Analyzer{
		extractors: opts.Extractors,
		aggOpts:    opts.Aggregate,
		pipeline:   opts.Pipeline,
		factory:    emit.NewFactory(opts.Dict, opts.Tracer, opts.Logger),
		annotate:   opts.Annotate,
		workers:    opts.Workers,
		tracer:     opts.Tracer,
		logger:     opts.Logger.With(zap.String("component", "analyzer")),
	}
	return a, nil
}

// Result of analyzing one record.
type Result struct {
	// Document is the analyzed record carrying the collected mention
	// properties. Nil when nothing was found.
	Document *emit.Entity
	Entities []*emit.Entity
	// Mentions holds every mention that went through the pipeline,
	// rejected ones included.
	Mentions []resolve.Mention
}

// All returns the entities followed by the document.
func (r *Result) All() []*emit.Entity {
	if r.Document == nil {
		return r.Entities
	}
	return append(slices.Clone(r.Entities), r.Document)
}

type job struct {
	extractor extract.Extractor
	text      string
}

// Analyze processes one record. Cancelling ctx stops resolution between
// mentions; what was resolved by then is returned along with ctx.Err().
// Stage failures in strict mode are returned the same way.
func (a *Analyzer) Analyze(ctx context.Context, rec Record) (*Result, error) {
	if rec.ID == "" {
		return nil, ErrMissingID
	}
	doc := resolve.DocumentRef(rec.ID)
	texts := rec.Texts()

	hits, err := a.extract(ctx, rec, texts)
	if err != nil {
		return nil, err
	}

	aggOpts := a.aggOpts
	if aggOpts.PhoneRegion == "" {
		if cs := rec.Properties["country"]; len(cs) > 0 {
			aggOpts.PhoneRegion = strings.ToUpper(cs[0])
		}
	}
	aggOpts.OnFiltered = func(r aggregate.AggregatedResult, reason string) {
		a.tracer.Filtered(r.Key, string(r.Tag), reason)
	}
	agg := aggregate.New(aggOpts)
	for _, h := range hits {
		ok, reason := agg.Add(h)
		a.tracer.Extraction(h.Value, string(h.Tag), h.Source, ok, reason)
	}

	var patterns []aggregate.AggregatedResult
	var mentions []resolve.Mention
	for r := range agg.Results() {
		a.tracer.Aggregation(r.Key, string(r.Tag), len(r.Values))
		if r.Tag.IsPattern() {
			patterns = append(patterns, r)
			continue
		}
		mentions = append(mentions, resolve.FromAggregated(r, doc))
	}

	resolved, resolveErr := a.resolve(ctx, mentions)

	res := a.emit(rec, texts, patterns, resolved)
	a.logger.Debug("record analyzed",
		zap.String("id", rec.ID),
		zap.Int("hits", len(hits)),
		zap.Int("mentions", len(resolved)),
		zap.Int("entities", len(res.Entities)),
	)
	return res, resolveErr
}

// extract runs every extractor over every text concurrently. Hits are
// returned in job order so aggregation does not depend on scheduling.
func (a *Analyzer) extract(ctx context.Context, rec Record, texts []string) ([]extract.ExtractionResult, error) {
	var jobs []job
	for _, ex := range a.extractors {
		for _, t := range texts {
			jobs = append(jobs, job{extractor: ex, text: t})
		}
	}
	pre, err := rec.Precomputed()
	if err != nil {
		return nil, err
	}
	for _, source := range slices.Sorted(maps.Keys(pre)) {
		jobs = append(jobs, job{extractor: extract.NewStaticExtractor(source, pre[source])})
	}

	results := make([][]extract.ExtractionResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, j := range jobs {
		g.Go(func() error {
			out, err := j.extractor.Extract(gctx, j.text)
			if err != nil {
				return fmt.Errorf("extract %s from %s: %w", j.extractor.Name(), rec.ID, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

// resolve threads mentions through the pipeline in parallel. Mentions not
// started before cancellation are dropped.
func (a *Analyzer) resolve(ctx context.Context, mentions []resolve.Mention) ([]resolve.Mention, error) {
	out := make([]resolve.Mention, len(mentions))
	done := make([]bool, len(mentions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, m := range mentions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := a.pipeline.Resolve(gctx, m)
			if err != nil {
				return err
			}
			out[i], done[i] = r, true
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	kept := out[:0]
	for i := range out {
		if done[i] {
			kept = append(kept, out[i])
		}
	}
	return kept, err
}

func (a *Analyzer) emit(rec Record, texts []string, patterns []aggregate.AggregatedResult, mentions []resolve.Mention) *Result {
	doc := resolve.DocumentRef(rec.ID)
	res := &Result{Mentions: mentions}

	schema := rec.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	record := emit.NewEntity(schema, rec.ID)
	record.Provenance.DocumentID = rec.ID

	var annotator *annotate.Annotator
	if a.annotate {
		annotator = annotate.New()
	}

	countries := slices.Clone(rec.Properties["country"])
	for _, r := range patterns {
		switch r.Tag {
		case extract.TagIBAN:
			countries = addCountry(countries, normalize.IBANCountry(r.Key))
		case extract.TagPhone:
			countries = addCountry(countries, normalize.PhoneCountry(r.Key))
		}
	}
	for _, m := range mentions {
		if m.Status == resolve.StatusAccepted && m.Country != nil {
			countries = addCountry(countries, *m.Country)
		}
	}

	// PER and ORG hits on one surface form can resolve to the same entity.
	byID := make(map[string]*emit.Entity)
	add := func(e *emit.Entity) {
		if prev, ok := byID[e.ID]; ok {
			prev.Merge(e)
			return
		}
		byID[e.ID] = e
		res.Entities = append(res.Entities, e)
	}

	for _, r := range patterns {
		for _, e := range a.factory.FromPattern(r, doc) {
			add(e)
		}
		for _, prop := range emit.MentionProps(r.Tag) {
			record.Add(prop, r.Key)
			if annotator != nil {
				for _, v := range r.Values {
					annotator.AddTag(prop, v)
				}
			}
		}
	}

	accepted := 0
	for _, m := range mentions {
		if m.Status != resolve.StatusAccepted {
			continue
		}
		accepted++
		e := a.factory.FromMention(m, countries)
		if e != nil {
			add(e)
		}
		for _, prop := range emit.MentionProps(m.Tag) {
			record.Add(prop, m.Names()...)
		}
		if annotator == nil {
			continue
		}
		if e != nil && e.IsA(emit.SchemaLegalEntity) {
			for _, v := range m.Values {
				annotator.AddEntity(v, e)
			}
			continue
		}
		for _, prop := range emit.MentionProps(m.Tag) {
			for _, v := range m.Values {
				annotator.AddTag(prop, v)
			}
		}
	}

	if len(patterns) == 0 && accepted == 0 {
		return res
	}
	record.Add("country", countries...)
	record.Add("detectedLanguage", rec.Languages...)
	if annotator != nil {
		record.Add("indexText", annotator.Texts(texts)...)
	}
	res.Document = record
	return res
}

// addCountry appends c unless it is empty or already present in any case.
func addCountry(countries []string, c string) []string {
	if c == "" {
		return countries
	}
	for _, have := range countries {
		if strings.EqualFold(have, c) {
			return countries
		}
	}
	return append(countries, c)
}
