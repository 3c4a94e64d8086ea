package resolve

import (
	"context"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
)

// GeonamesStage resolves locations against a gazetteer. In strict mode a
// location that cannot be found is rejected; otherwise it passes unresolved.
type GeonamesStage struct {
	gaz    Gazetteer
	dict   *normalize.Dictionary
	strict bool
}

func NewGeonamesStage(gaz Gazetteer, dict *normalize.Dictionary, strict bool) *GeonamesStage {
	if dict == nil {
		dict = normalize.Default()
	}
	return &GeonamesStage{gaz: gaz, dict: dict, strict: strict}
}

func (s *GeonamesStage) Name() string { return StageGeonames }

func (s *GeonamesStage) Apply(ctx context.Context, m Mention) (Mention, error) {
	if m.Tag != extract.TagLocation {
		return m, nil
	}
	for _, name := range m.Names() {
		// "Paris Hilton" style values are people, not places.
		if s.dict.IsPersonName(name) {
			continue
		}
		loc, found, err := s.gaz.Lookup(ctx, name)
		if err != nil {
			return m, err
		}
		if !found {
			continue
		}
		if loc.Name != "" {
			m.CanonicalName = ptr(loc.Name)
		}
		if loc.Country != "" {
			m.Country = ptr(loc.Country)
		}
		return m, nil
	}
	if s.strict {
		m.Reject(StageGeonames, ReasonLocationNotFound)
	}
	return m, nil
}
