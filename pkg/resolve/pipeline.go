package resolve

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/normalize"
	"github.com/japaniel/entityscan/pkg/trace"
)

// Stage identifiers, in chain order.
const (
	StageRigour     = "RigourStage"
	StageClassifier = "JudithaClassifierStage"
	StageValidator  = "JudithaValidatorStage"
	StageGeonames   = "GeonamesStage"
	StageLookup     = "JudithaLookupStage"

	// StageComplete is the tracer label for a mention that passed every stage.
	StageComplete = "complete"
)

// DefaultStageTimeout bounds every external call made by a stage.
const DefaultStageTimeout = 10 * time.Second

// Stage is one policy step. Apply returns the updated mention; a non-nil
// error means the stage's external dependency failed and the returned
// mention must be ignored.
type Stage interface {
	Name() string
	Apply(ctx context.Context, m Mention) (Mention, error)
}

// Pipeline threads mentions through an ordered list of stages. It holds no
// mutable state and is safe for concurrent use when its stages are.
type Pipeline struct {
	stages  []Stage
	timeout time.Duration
	strict  bool
	tracer  *trace.Tracer
	logger  *zap.Logger
}

type Option func(*Pipeline)

// WithTimeout sets the per-stage timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithStrict makes an unavailable stage fail the whole resolution instead of
// being skipped.
func WithStrict(strict bool) Option {
	return func(p *Pipeline) { p.strict = strict }
}

func WithTracer(t *trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a pipeline over the given stages, in the given order.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:  stages,
		timeout: DefaultStageTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the names of the active stages in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Config selects and tunes the optional stages. RigourStage always runs.
type Config struct {
	Classifier bool
	Validator  bool
	Geonames   bool
	Lookup     bool

	ClassifierThreshold   float64
	ClassifierRejectOther bool
	LookupThreshold       float64
	GeonamesStrict        bool

	Strict       bool
	StageTimeout time.Duration
}

// DefaultConfig has only RigourStage enabled.
func DefaultConfig() Config {
	return Config{
		ClassifierThreshold:   DefaultClassifierThreshold,
		ClassifierRejectOther: true,
		LookupThreshold:       DefaultLookupThreshold,
		StageTimeout:          DefaultStageTimeout,
	}
}

// Services are the external collaborators the optional stages call.
type Services struct {
	Classifier Classifier
	Validator  NameValidator
	Gazetteer  Gazetteer
	Lookup     EntityLookup
	Dict       *normalize.Dictionary
}

// Build assembles the chain in its fixed order. An enabled stage without its
// service fails construction with a *ConfigError.
func Build(cfg Config, svc Services, opts ...Option) (*Pipeline, error) {
	var errs []error
	stages := []Stage{NewRigourStage(svc.Dict)}

	if cfg.Classifier {
		if svc.Classifier == nil {
			errs = append(errs, &ConfigError{Stage: StageClassifier, Reason: "enabled without a classifier service"})
		} else {
			stages = append(stages, NewClassifierStage(svc.Classifier, cfg.ClassifierThreshold, cfg.ClassifierRejectOther))
		}
	}
	if cfg.Validator {
		if svc.Validator == nil {
			errs = append(errs, &ConfigError{Stage: StageValidator, Reason: "enabled without a name validator service"})
		} else {
			stages = append(stages, NewValidatorStage(svc.Validator))
		}
	}
	if cfg.Geonames {
		if svc.Gazetteer == nil {
			errs = append(errs, &ConfigError{Stage: StageGeonames, Reason: "enabled without a geonames dataset"})
		} else {
			stages = append(stages, NewGeonamesStage(svc.Gazetteer, svc.Dict, cfg.GeonamesStrict))
		}
	}
	if cfg.Lookup {
		if svc.Lookup == nil {
			errs = append(errs, &ConfigError{Stage: StageLookup, Reason: "enabled without an entity lookup service"})
		} else {
			stages = append(stages, NewLookupStage(svc.Lookup, cfg.LookupThreshold))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	all := append([]Option{WithTimeout(cfg.StageTimeout), WithStrict(cfg.Strict)}, opts...)
	return New(stages, all...), nil
}

// Resolve runs m through the chain, stopping at the first rejection. The
// only error it returns is a *StageError, and only in strict mode.
//
// Cancelling ctx does not interrupt a mention halfway through the chain;
// callers stop between mentions instead.
func (p *Pipeline) Resolve(ctx context.Context, m Mention) (Mention, error) {
	if m.IsRejected() {
		return m, nil
	}
	base := context.WithoutCancel(ctx)
	m.Status = StatusPending
	m.Passed = slices.Clone(m.Passed)
	m.Unavailable = slices.Clone(m.Unavailable)

	for _, stage := range p.stages {
		name := stage.Name()
		next, err := p.apply(base, stage, m)
		if err != nil {
			serr := &StageError{Stage: name, Err: err}
			p.tracer.Unavailable(m.Key, name, err)
			if p.strict {
				return m, serr
			}
			p.logger.Debug("stage unavailable, skipping",
				zap.String("stage", name),
				zap.String("key", m.Key),
				zap.Error(err),
			)
			m.Unavailable = append(m.Unavailable, name)
			continue
		}

		m = next
		if m.IsRejected() {
			m.RejectedBy = name
			p.tracer.Resolution(m.Key, name, false, m.RejectReason)
			return m, nil
		}
		m.Passed = append(m.Passed, name)
	}

	m.Status = StatusAccepted
	p.tracer.Resolution(m.Key, StageComplete, true, "")
	return m, nil
}

func (p *Pipeline) apply(ctx context.Context, stage Stage, m Mention) (Mention, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return stage.Apply(ctx, m)
}
