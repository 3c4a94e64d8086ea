package resolve

import (
	"context"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
)

// RigourStage classifies names with the local name dictionaries and strips
// honorifics and legal prefixes. It never calls out and never rejects.
type RigourStage struct {
	dict *normalize.Dictionary
}

func NewRigourStage(dict *normalize.Dictionary) *RigourStage {
	if dict == nil {
		dict = normalize.Default()
	}
	return &RigourStage{dict: dict}
}

func (s *RigourStage) Name() string { return StageRigour }

func (s *RigourStage) Apply(_ context.Context, m Mention) (Mention, error) {
	names := m.Names()
	if len(names) == 0 {
		return m, nil
	}

	var strip func(string) string
	switch {
	case s.dict.IsPersonName(m.Value):
		m.Tag = extract.TagPerson
		strip = s.dict.RemovePersonPrefixes
	case s.dict.IsOrgName(m.Value):
		m.Tag = extract.TagOrg
		strip = s.dict.RemoveOrgPrefixes
	case m.Tag == extract.TagPerson:
		strip = s.dict.RemovePersonPrefixes
	case m.Tag == extract.TagOrg:
		strip = s.dict.RemoveOrgPrefixes
	default:
		strip = s.dict.RemoveObjPrefixes
	}

	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		cleaned = append(cleaned, strip(n))
	}
	m.SetResolvedValues(cleaned)
	return m, nil
}
