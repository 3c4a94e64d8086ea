package analyze

import (
	"fmt"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
)

// NER engine selections.
const (
	EngineAll       = "all"
	EngineKagome    = "kagome"
	EngineHeuristic = "heuristic"
	EngineNone      = "none"
)

// BuildExtractors returns the pattern extractor plus the NER extractors the
// engine selects. Precomputed hits carried by records are always used.
func BuildExtractors(engine string, confidence float64, dict *normalize.Dictionary) ([]extract.Extractor, error) {
	out := []extract.Extractor{extract.NewPatternExtractor()}

	useKagome, useHeuristic := false, false
	switch engine {
	case EngineAll, "":
		useKagome, useHeuristic = true, true
	case EngineKagome:
		useKagome = true
	case EngineHeuristic:
		useHeuristic = true
	case EngineNone:
	default:
		return nil, fmt.Errorf("unknown NER engine %q", engine)
	}

	if useKagome {
		k, err := extract.NewKagomeExtractor(confidence)
		if err != nil {
			return nil, fmt.Errorf("init kagome: %w", err)
		}
		out = append(out, k)
	}
	if useHeuristic {
		out = append(out, extract.NewHeuristicExtractor(dict))
	}
	return out, nil
}
