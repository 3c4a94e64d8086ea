package resolve

import (
	"context"
	"slices"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
)

const (
	DefaultClassifierThreshold = 0.5
	DefaultLookupThreshold     = 0.8

	// Organization names this long are not flipped to PER by the classifier.
	maxFlipToPersonLen = 20
)

// Rejection reasons.
const (
	ReasonLowConfidence    = "low_confidence"
	ReasonClassifiedOther  = "classified_other"
	ReasonNameValidation   = "name_validation_failed"
	ReasonLocationNotFound = "location_not_found"
)

// ClassifierStage asks an external classifier whether a PER or ORG mention
// really is what the extractors said.
type ClassifierStage struct {
	svc         Classifier
	threshold   float64
	rejectOther bool
}

func NewClassifierStage(svc Classifier, threshold float64, rejectOther bool) *ClassifierStage {
	return &ClassifierStage{svc: svc, threshold: threshold, rejectOther: rejectOther}
}

func (s *ClassifierStage) Name() string { return StageClassifier }

func (s *ClassifierStage) Apply(ctx context.Context, m Mention) (Mention, error) {
	if m.Tag != extract.TagPerson && m.Tag != extract.TagOrg {
		return m, nil
	}
	c, err := s.svc.Classify(ctx, m.Value)
	if err != nil {
		return m, err
	}
	if c.Confidence < s.threshold {
		m.Reject(StageClassifier, ReasonLowConfidence)
		return m, nil
	}

	switch c.Tag {
	case extract.TagPerson:
		if m.Tag == extract.TagOrg && len([]rune(m.Value)) > maxFlipToPersonLen {
			break
		}
		m.Tag = extract.TagPerson
	case extract.TagOrg:
		m.Tag = extract.TagOrg
	default:
		if s.rejectOther {
			m.Reject(StageClassifier, ReasonClassifiedOther)
		}
	}
	return m, nil
}

// ValidatorStage checks person name tokens against a known-names corpus.
type ValidatorStage struct {
	svc NameValidator
}

func NewValidatorStage(svc NameValidator) *ValidatorStage {
	return &ValidatorStage{svc: svc}
}

func (s *ValidatorStage) Name() string { return StageValidator }

func (s *ValidatorStage) Apply(ctx context.Context, m Mention) (Mention, error) {
	if m.Tag != extract.TagPerson {
		return m, nil
	}
	tokens := normalize.Tokens(m.Value)
	if len(tokens) == 0 {
		return m, nil
	}
	ok, err := s.svc.Validate(ctx, tokens)
	if err != nil {
		return m, err
	}
	if !ok {
		m.Reject(StageValidator, ReasonNameValidation)
	}
	return m, nil
}

// LookupStage links a mention to a known entity. A miss is not a rejection.
type LookupStage struct {
	svc       EntityLookup
	threshold float64
}

func NewLookupStage(svc EntityLookup, threshold float64) *LookupStage {
	return &LookupStage{svc: svc, threshold: threshold}
}

func (s *LookupStage) Name() string { return StageLookup }

func (s *LookupStage) Apply(ctx context.Context, m Mention) (Mention, error) {
	match, found, err := s.svc.Lookup(ctx, m.Value, m.Tag)
	if err != nil {
		return m, err
	}
	if !found || match.ID == "" || match.Score < s.threshold {
		return m, nil
	}

	m.ResolvedID = ptr(match.ID)
	m.ResolvedBy = StageLookup
	if match.Caption != "" {
		m.CanonicalName = ptr(match.Caption)
	}
	if match.Schema != "" {
		m.ResolvedSchema = ptr(match.Schema)
	}
	if len(match.Names) > 0 {
		m.SetResolvedValues(append(slices.Clone(m.Names()), match.Names...))
	}
	for _, c := range match.Countries {
		if !slices.Contains(m.Countries, c) {
			m.Countries = append(slices.Clone(m.Countries), c)
		}
	}
	if m.Country == nil && len(m.Countries) > 0 {
		m.Country = ptr(m.Countries[0])
	}
	return m, nil
}
