package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/analyze"
	"github.com/japaniel/entityscan/pkg/geonames"
	"github.com/japaniel/entityscan/pkg/juditha"
	"github.com/japaniel/entityscan/pkg/normalize"
	"github.com/japaniel/entityscan/pkg/resolve"
	"github.com/japaniel/entityscan/pkg/trace"
)

// newAnalyzer assembles the analyzer described by the loaded settings. The
// geonames dataset is downloaded first when the stage is enabled and the
// file is missing.
func (a *app) newAnalyzer(ctx context.Context) (*analyze.Analyzer, *trace.Tracer, error) {
	s := a.settings

	dict := normalize.Default()
	if s.Rigour.NamesPath != "" {
		d, err := normalize.LoadDictionary(s.Rigour.NamesPath)
		if err != nil {
			return nil, nil, err
		}
		dict = d
		a.logger.Info("loaded name dictionary", zap.String("path", s.Rigour.NamesPath))
	}

	var metrics *trace.Metrics
	if a.registry != nil {
		m, err := trace.NewMetrics(a.registry)
		if err != nil {
			return nil, nil, fmt.Errorf("register metrics: %w", err)
		}
		metrics = m
	}
	tracerLogger := zap.NewNop()
	if s.Trace {
		tracerLogger = a.logger
	}
	tracer := trace.New(tracerLogger, metrics)

	svc := resolve.Services{Dict: dict}
	if s.UsesJuditha() {
		client, err := juditha.NewClient(s.JudithaConfig(), a.logger)
		if err != nil {
			return nil, nil, err
		}
		svc.Classifier = client
		svc.Validator = client
		svc.Lookup = client
	}
	if s.Resolve.Geonames {
		if err := geonames.EnsureDataset(ctx, s.Geonames.Path, s.Geonames.URL, a.logger); err != nil {
			return nil, nil, err
		}
		idx, err := geonames.Open(s.Geonames.Path, s.Geonames.MinPopulation, s.Geonames.MinSimilarity)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("loaded geonames", zap.String("path", s.Geonames.Path), zap.Int("places", idx.Len()))
		svc.Gazetteer = idx
	}

	pipeline, err := resolve.Build(s.ResolveConfig(), svc,
		resolve.WithTracer(tracer),
		resolve.WithLogger(a.logger),
	)
	if err != nil {
		return nil, nil, err
	}

	extractors, err := analyze.BuildExtractors(s.NER.Engine, s.NER.Confidence, dict)
	if err != nil {
		return nil, nil, err
	}

	analyzer, err := analyze.New(analyze.Options{
		Extractors: extractors,
		Aggregate:  s.AggregateOptions(),
		Pipeline:   pipeline,
		Dict:       dict,
		Annotate:   s.Annotate,
		Workers:    s.Resolve.Workers,
		Tracer:     tracer,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return analyzer, tracer, nil
}
