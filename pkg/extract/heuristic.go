package extract

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/japaniel/entityscan/pkg/normalize"
)

// SourceHeuristic is the source name of capitalization based hits.
const SourceHeuristic = "heuristic"

var connectors = map[string]bool{
	"of": true, "de": true, "del": true, "der": true, "van": true, "von": true, "and": true, "&": true,
}

// HeuristicExtractor finds runs of capitalized words in Latin-script text and
// keeps those the name dictionary can type: runs containing a legal form are
// organizations, runs led by an honorific or a known given name are people.
type HeuristicExtractor struct {
	Dict *normalize.Dictionary
	// MaxTokens bounds the length of a run.
	MaxTokens int
}

func NewHeuristicExtractor(dict *normalize.Dictionary) *HeuristicExtractor {
	if dict == nil {
		dict = normalize.Default()
	}
	return &HeuristicExtractor{Dict: dict, MaxTokens: 6}
}

func (h *HeuristicExtractor) Name() string { return SourceHeuristic }

func (h *HeuristicExtractor) Extract(ctx context.Context, text string) ([]ExtractionResult, error) {
	var out []ExtractionResult
	for _, line := range strings.FieldsFunc(text, isClauseBreak) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, run := range h.runs(strings.Fields(line)) {
			if res, ok := h.classify(run); ok {
				out = append(out, res)
			}
		}
	}
	return out, nil
}

// runs groups consecutive capitalized words, allowing lower-case connectors
// inside a run.
func (h *HeuristicExtractor) runs(words []string) [][]string {
	var runs [][]string
	var current []string
	closeRun := func() {
		for len(current) > 0 && connectors[strings.ToLower(current[len(current)-1])] {
			current = current[:len(current)-1]
		}
		if len(current) > 1 {
			runs = append(runs, current)
		}
		current = nil
	}
	for _, w := range words {
		trimmed := strings.Trim(w, `"'“”‘’()[]{}:;!?`)
		endsClause := strings.HasSuffix(trimmed, ",")
		trimmed = strings.TrimSuffix(trimmed, ",")
		if strings.HasSuffix(trimmed, ".") && utf8.RuneCountInString(trimmed) > 2 && !h.Dict.IsPersonPrefix(trimmed) {
			// sentence end, unless it is an honorific or an initial
			endsClause = true
		}
		switch {
		case isCapitalized(trimmed):
			current = append(current, trimmed)
		case len(current) > 0 && connectors[strings.ToLower(trimmed)]:
			current = append(current, trimmed)
		default:
			closeRun()
		}
		if endsClause || len(current) >= h.MaxTokens {
			closeRun()
		}
	}
	closeRun()
	return runs
}

func (h *HeuristicExtractor) classify(run []string) (ExtractionResult, bool) {
	value := strings.Join(run, " ")
	for _, w := range run {
		if h.Dict.IsLegalForm(w) {
			return ExtractionResult{Tag: TagOrg, Value: value, Source: SourceHeuristic, Confidence: 0.9}, true
		}
	}
	if h.Dict.IsPersonPrefix(run[0]) {
		return ExtractionResult{Tag: TagPerson, Value: value, Source: SourceHeuristic, Confidence: 0.85}, true
	}
	if h.Dict.IsGivenName(run[0]) {
		return ExtractionResult{Tag: TagPerson, Value: value, Source: SourceHeuristic, Confidence: 0.7}, true
	}
	return ExtractionResult{}, false
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return false
	}
	for _, c := range w {
		if !unicode.Is(unicode.Latin, c) && !strings.ContainsRune(".-&'", c) {
			return false
		}
	}
	return true
}

func isClauseBreak(r rune) bool {
	return r == '\n' || r == ';' || r == '!' || r == '?'
}
