package source

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/japaniel/entityscan/pkg/analyze"
	"github.com/japaniel/entityscan/pkg/emit"
)

// ArticleSchema is the schema of records built from web pages.
const ArticleSchema = "Article"

var (
	// (?s) allows dot to match newlines
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses
// (<rp>...</rp>). Readability keeps furigana as text, which would turn
// "漢字" into "漢字かんじ" and break Japanese names apart.
// It operates on bytes and is safe for Shift_JIS input: '<' is never a
// trailing byte there.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}

// FromHTML extracts the main article of a page into a record. pageURL may be
// empty; when set it also determines the record id.
func FromHTML(content []byte, pageURL string) (analyze.Record, error) {
	var parsed *url.URL
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return analyze.Record{}, fmt.Errorf("parse url %q: %w", pageURL, err)
		}
		parsed = u
	}

	article, err := readability.FromReader(bytes.NewReader(SanitizeRuby(content)), parsed)
	if err != nil {
		return analyze.Record{}, fmt.Errorf("extract article: %w", err)
	}

	id := emit.MakeID("html", pageURL)
	if pageURL == "" {
		id = emit.MakeID("html", string(content))
	}
	rec := analyze.Record{
		ID:         id,
		Schema:     ArticleSchema,
		Properties: map[string][]string{},
	}
	set := func(prop, value string) {
		if value = strings.TrimSpace(value); value != "" {
			rec.Properties[prop] = []string{value}
		}
	}
	set("title", article.Title)
	set("summary", article.Excerpt)
	set("bodyText", article.TextContent)
	set("author", article.Byline)
	set("publisher", article.SiteName)
	set("sourceUrl", pageURL)
	return rec, nil
}
