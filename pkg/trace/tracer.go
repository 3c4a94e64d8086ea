// Package trace counts what happens to hits and mentions on their way
// through extraction, aggregation, resolution and entity creation.
package trace

import (
	"encoding/json"
	"maps"
	"sync"

	"go.uber.org/zap"
)

// Summary is a snapshot of tracer counters.
type Summary struct {
	ExtractionsTotal     int            `json:"extractions_total"`
	ExtractionsAccepted  int            `json:"extractions_accepted"`
	ExtractionsRejected  int            `json:"extractions_rejected"`
	ExtractionsBySource  map[string]int `json:"extractions_by_source"`
	ExtractionsByTag     map[string]int `json:"extractions_by_tag"`
	ExtractionRejections map[string]int `json:"extraction_rejections"`

	AggregatedTotal  int            `json:"aggregated_total"`
	AggregatedByTag  map[string]int `json:"aggregated_by_tag"`
	FilteredTotal    int            `json:"filtered_total"`
	FilteredByReason map[string]int `json:"filtered_by_reason"`

	ResolutionTotal    int            `json:"resolution_total"`
	ResolutionAccepted int            `json:"resolution_accepted"`
	ResolutionRejected int            `json:"resolution_rejected"`
	RejectionByStage   map[string]int `json:"rejection_by_stage"`
	RejectionByReason  map[string]int `json:"rejection_by_reason"`
	UnavailableByStage map[string]int `json:"unavailable_by_stage"`

	EntitiesCreated  int            `json:"entities_created"`
	EntitiesBySchema map[string]int `json:"entities_by_schema"`
}

func newSummary() Summary {
	return Summary{
		ExtractionsBySource:  map[string]int{},
		ExtractionsByTag:     map[string]int{},
		ExtractionRejections: map[string]int{},
		AggregatedByTag:      map[string]int{},
		FilteredByReason:     map[string]int{},
		RejectionByStage:     map[string]int{},
		RejectionByReason:    map[string]int{},
		UnavailableByStage:   map[string]int{},
		EntitiesBySchema:     map[string]int{},
	}
}

func (s Summary) clone() Summary {
	out := s
	out.ExtractionsBySource = maps.Clone(s.ExtractionsBySource)
	out.ExtractionsByTag = maps.Clone(s.ExtractionsByTag)
	out.ExtractionRejections = maps.Clone(s.ExtractionRejections)
	out.AggregatedByTag = maps.Clone(s.AggregatedByTag)
	out.FilteredByReason = maps.Clone(s.FilteredByReason)
	out.RejectionByStage = maps.Clone(s.RejectionByStage)
	out.RejectionByReason = maps.Clone(s.RejectionByReason)
	out.UnavailableByStage = maps.Clone(s.UnavailableByStage)
	out.EntitiesBySchema = maps.Clone(s.EntitiesBySchema)
	return out
}

// Add folds other into s. s must come from a Tracer or NewSummary.
func (s *Summary) Add(other Summary) {
	s.ExtractionsTotal += other.ExtractionsTotal
	s.ExtractionsAccepted += other.ExtractionsAccepted
	s.ExtractionsRejected += other.ExtractionsRejected
	addCounts(s.ExtractionsBySource, other.ExtractionsBySource)
	addCounts(s.ExtractionsByTag, other.ExtractionsByTag)
	addCounts(s.ExtractionRejections, other.ExtractionRejections)
	s.AggregatedTotal += other.AggregatedTotal
	addCounts(s.AggregatedByTag, other.AggregatedByTag)
	s.FilteredTotal += other.FilteredTotal
	addCounts(s.FilteredByReason, other.FilteredByReason)
	s.ResolutionTotal += other.ResolutionTotal
	s.ResolutionAccepted += other.ResolutionAccepted
	s.ResolutionRejected += other.ResolutionRejected
	addCounts(s.RejectionByStage, other.RejectionByStage)
	addCounts(s.RejectionByReason, other.RejectionByReason)
	addCounts(s.UnavailableByStage, other.UnavailableByStage)
	s.EntitiesCreated += other.EntitiesCreated
	addCounts(s.EntitiesBySchema, other.EntitiesBySchema)
}

// NewSummary returns an empty summary ready for Add.
func NewSummary() Summary { return newSummary() }

func addCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

// String renders the summary as JSON.
func (s Summary) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Tracer is safe for concurrent use. A nil *Tracer ignores every call, so
// callers never need to check whether tracing is enabled.
type Tracer struct {
	mu      sync.Mutex
	s       Summary
	logger  *zap.Logger
	metrics *Metrics
}

// New creates a tracer. logger receives debug events; metrics may be nil.
func New(logger *zap.Logger, metrics *Metrics) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{s: newSummary(), logger: logger.Named("trace"), metrics: metrics}
}

// Extraction records one extractor hit and whether the aggregator took it.
func (t *Tracer) Extraction(value, tag, source string, accepted bool, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.ExtractionsTotal++
	t.s.ExtractionsBySource[source]++
	if accepted {
		t.s.ExtractionsAccepted++
		t.s.ExtractionsByTag[tag]++
	} else {
		t.s.ExtractionsRejected++
		if reason == "" {
			reason = "unknown"
		}
		t.s.ExtractionRejections[reason]++
	}
	t.mu.Unlock()

	t.metrics.extraction(source, tag, accepted, reason)
	if accepted {
		t.logger.Debug("extraction accepted", zap.String("tag", tag), zap.String("value", value), zap.String("source", source))
	} else {
		t.logger.Debug("extraction rejected", zap.String("tag", tag), zap.String("value", value), zap.String("source", source), zap.String("reason", reason))
	}
}

// Aggregation records one aggregated result leaving the confidence filter.
func (t *Tracer) Aggregation(key, tag string, valueCount int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.AggregatedTotal++
	t.s.AggregatedByTag[tag]++
	t.mu.Unlock()

	t.metrics.aggregation(tag)
	t.logger.Debug("aggregated", zap.String("tag", tag), zap.String("key", key), zap.Int("values", valueCount))
}

// Filtered records an aggregated result dropped by the confidence filter.
func (t *Tracer) Filtered(key, tag, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.FilteredTotal++
	t.s.FilteredByReason[reason]++
	t.mu.Unlock()

	t.metrics.filtered(tag, reason)
	t.logger.Debug("confidence filter rejected", zap.String("tag", tag), zap.String("key", key), zap.String("reason", reason))
}

// Resolution records the terminal outcome of one mention.
func (t *Tracer) Resolution(key, stage string, accepted bool, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.ResolutionTotal++
	if accepted {
		t.s.ResolutionAccepted++
	} else {
		t.s.ResolutionRejected++
		t.s.RejectionByStage[stage]++
		if reason != "" {
			t.s.RejectionByReason[reason]++
		}
	}
	t.mu.Unlock()

	t.metrics.resolution(stage, accepted, reason)
	if accepted {
		t.logger.Debug("resolution accepted", zap.String("key", key))
	} else {
		t.logger.Debug("resolution rejected", zap.String("stage", stage), zap.String("key", key), zap.String("reason", reason))
	}
}

// Unavailable records a stage whose external dependency failed.
func (t *Tracer) Unavailable(key, stage string, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.UnavailableByStage[stage]++
	t.mu.Unlock()

	t.metrics.unavailable(stage)
	t.logger.Debug("stage unavailable", zap.String("stage", stage), zap.String("key", key), zap.Error(err))
}

// Entity records one emitted entity.
func (t *Tracer) Entity(schema, id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.EntitiesCreated++
	t.s.EntitiesBySchema[schema]++
	t.mu.Unlock()

	t.metrics.entity(schema)
	t.logger.Debug("entity created", zap.String("schema", schema), zap.String("id", id))
}

// Summary returns a copy of the counters.
func (t *Tracer) Summary() Summary {
	if t == nil {
		return newSummary()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.clone()
}

// Merge adds the counters of another summary, e.g. one collected by a worker.
func (t *Tracer) Merge(other Summary) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.s.Add(other)
	t.mu.Unlock()
}

// LogSummary writes the counters at info level.
func (t *Tracer) LogSummary(msg string) {
	if t == nil {
		return
	}
	s := t.Summary()
	t.logger.Info(msg,
		zap.Int("extractions", s.ExtractionsTotal),
		zap.Int("extractions_rejected", s.ExtractionsRejected),
		zap.Int("aggregated", s.AggregatedTotal),
		zap.Int("filtered", s.FilteredTotal),
		zap.Int("resolved", s.ResolutionAccepted),
		zap.Int("rejected", s.ResolutionRejected),
		zap.Any("rejection_by_stage", s.RejectionByStage),
		zap.Any("unavailable_by_stage", s.UnavailableByStage),
		zap.Any("entities_by_schema", s.EntitiesBySchema),
	)
}
