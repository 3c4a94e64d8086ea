package geonames

import (
	"context"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/japaniel/entityscan/pkg/normalize"
	"github.com/japaniel/entityscan/pkg/resolve"
)

const (
	DefaultMinSimilarity = 0.9
	memoSize             = 10_000
)

type entry struct {
	name  string
	place int
}

type hit struct {
	loc   resolve.Location
	found bool
}

// Index answers place name lookups. Exact matches on the folded name win,
// the most populous place breaking ties; otherwise the closest name above
// the similarity floor is used. Safe for concurrent use.
type Index struct {
	places        []Place
	exact         map[string][]int
	byRune        map[rune][]entry
	minSimilarity float64
	memo          *lru.Cache[string, hit]
}

// NewIndex builds an index. minSimilarity <= 0 uses DefaultMinSimilarity.
func NewIndex(places []Place, minSimilarity float64) *Index {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	memo, _ := lru.New[string, hit](memoSize)
	idx := &Index{
		places:        places,
		exact:         make(map[string][]int),
		byRune:        make(map[rune][]entry),
		minSimilarity: minSimilarity,
		memo:          memo,
	}
	for i, p := range places {
		seen := make(map[string]bool)
		for _, n := range p.Names() {
			key := normalize.Fold(normalize.CollapseSpaces(n))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			idx.exact[key] = append(idx.exact[key], i)
			r, _ := utf8.DecodeRuneInString(key)
			idx.byRune[r] = append(idx.byRune[r], entry{name: key, place: i})
		}
	}
	return idx
}

// Open loads the dataset at path and indexes it.
func Open(path string, minPopulation int64, minSimilarity float64) (*Index, error) {
	places, err := LoadFile(path, minPopulation)
	if err != nil {
		return nil, err
	}
	return NewIndex(places, minSimilarity), nil
}

func (idx *Index) Len() int { return len(idx.places) }

// Lookup implements resolve.Gazetteer. It never returns an error; the
// signature allows remote gazetteers.
func (idx *Index) Lookup(ctx context.Context, value string) (resolve.Location, bool, error) {
	key := normalize.Fold(normalize.CollapseSpaces(value))
	if key == "" {
		return resolve.Location{}, false, nil
	}
	if h, ok := idx.memo.Get(key); ok {
		return h.loc, h.found, nil
	}

	h := idx.find(key)
	idx.memo.Add(key, h)
	return h.loc, h.found, nil
}

func (idx *Index) find(key string) hit {
	if ids, ok := idx.exact[key]; ok {
		return idx.hitFor(idx.mostPopulous(ids))
	}

	// Fuzzy candidates share the first letter.
	r, _ := utf8.DecodeRuneInString(key)
	keyLen := utf8.RuneCountInString(key)
	best, bestScore := -1, idx.minSimilarity
	for _, e := range idx.byRune[r] {
		n := utf8.RuneCountInString(e.name)
		if float64(abs(n-keyLen)) > float64(max(n, keyLen))*(1-idx.minSimilarity) {
			continue
		}
		score := levenshtein.Similarity(key, e.name, nil)
		if score > bestScore || (score == bestScore && best >= 0 && idx.places[e.place].Population > idx.places[best].Population) {
			best, bestScore = e.place, score
		}
	}
	if best < 0 {
		return hit{}
	}
	return idx.hitFor(best)
}

func (idx *Index) mostPopulous(ids []int) int {
	best := ids[0]
	for _, i := range ids[1:] {
		if idx.places[i].Population > idx.places[best].Population {
			best = i
		}
	}
	return best
}

func (idx *Index) hitFor(i int) hit {
	p := idx.places[i]
	return hit{loc: resolve.Location{Name: p.Name, Country: p.Country}, found: true}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
