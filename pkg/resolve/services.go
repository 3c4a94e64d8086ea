package resolve

import (
	"context"

	"github.com/japaniel/entityscan/pkg/extract"
)

// Classification is a predicted tag with its confidence.
type Classification struct {
	Tag        extract.Tag
	Confidence float64
}

// Classifier predicts what kind of entity a name refers to.
type Classifier interface {
	Classify(ctx context.Context, value string) (Classification, error)
}

// NameValidator checks name tokens against a corpus of known names.
type NameValidator interface {
	Validate(ctx context.Context, tokens []string) (bool, error)
}

// Location is a gazetteer hit.
type Location struct {
	Name    string
	Country string
}

// Gazetteer looks up place names. A miss is (Location{}, false, nil).
type Gazetteer interface {
	Lookup(ctx context.Context, value string) (Location, bool, error)
}

// Match is an entity store hit.
type Match struct {
	ID        string
	Caption   string
	Names     []string
	Schema    string
	Countries []string
	Score     float64
}

// EntityLookup finds known entities by name. A miss is (Match{}, false, nil).
type EntityLookup interface {
	Lookup(ctx context.Context, value string, tag extract.Tag) (Match, bool, error)
}
