package trace

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors tracer counters into Prometheus.
type Metrics struct {
	extractionsTotal *prometheus.CounterVec
	aggregatedTotal  *prometheus.CounterVec
	filteredTotal    *prometheus.CounterVec
	resolutionsTotal *prometheus.CounterVec
	unavailableTotal *prometheus.CounterVec
	entitiesTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		extractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscan_extractions_total",
				Help: "Total number of extractor hits offered to the aggregator",
			},
			[]string{"source", "tag", "accepted", "reason"},
		),
		aggregatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscan_aggregated_total",
				Help: "Total number of aggregated results passing the confidence filter",
			},
			[]string{"tag"},
		),
		filteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscan_filtered_total",
				Help: "Total number of aggregated results dropped by the confidence filter",
			},
			[]string{"tag", "reason"},
		),
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscan_resolutions_total",
				Help: "Total number of mentions resolved, by terminal stage",
			},
			[]string{"stage", "accepted", "reason"},
		),
		unavailableTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscan_stage_unavailable_total",
				Help: "Total number of stage calls whose external dependency failed",
			},
			[]string{"stage"},
		),
		entitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entityscan_entities_total",
				Help: "Total number of entities emitted",
			},
			[]string{"schema"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.extractionsTotal, m.aggregatedTotal, m.filteredTotal,
		m.resolutionsTotal, m.unavailableTotal, m.entitiesTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) extraction(source, tag string, accepted bool, reason string) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(source, tag, strconv.FormatBool(accepted), reason).Inc()
}

func (m *Metrics) aggregation(tag string) {
	if m == nil {
		return
	}
	m.aggregatedTotal.WithLabelValues(tag).Inc()
}

func (m *Metrics) filtered(tag, reason string) {
	if m == nil {
		return
	}
	m.filteredTotal.WithLabelValues(tag, reason).Inc()
}

func (m *Metrics) resolution(stage string, accepted bool, reason string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(stage, strconv.FormatBool(accepted), reason).Inc()
}

func (m *Metrics) unavailable(stage string) {
	if m == nil {
		return
	}
	m.unavailableTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) entity(schema string) {
	if m == nil {
		return
	}
	m.entitiesTotal.WithLabelValues(schema).Inc()
}
