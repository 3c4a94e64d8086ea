package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

//go:embed names.yml
var embeddedNames []byte

const memoSize = 10_000

// DictionaryData is the YAML shape of a name dictionary.
type DictionaryData struct {
	PersonPrefixes []string            `yaml:"person_prefixes"`
	OrgPrefixes    []string            `yaml:"org_prefixes"`
	ObjPrefixes    []string            `yaml:"obj_prefixes"`
	OrgTypes       map[string][]string `yaml:"org_types"`
	PersonNames    []string            `yaml:"person_names"`
}

// Dictionary holds the curated name symbols: honorifics, legal forms and
// tokens known to occur in personal names. It is read-only after construction
// and safe for concurrent use.
type Dictionary struct {
	personPrefixes map[string]bool
	orgPrefixes    map[string]bool
	objPrefixes    map[string]bool
	orgTypes       map[string]string // variant -> canonical
	personNames    map[string]bool

	rePerson *regexp.Regexp
	reOrg    *regexp.Regexp
	reObj    *regexp.Regexp

	personMemo *lru.Cache[string, bool]
	orgMemo    *lru.Cache[string, bool]
}

// NewDictionary merges one or more dictionary documents.
func NewDictionary(docs ...DictionaryData) (*Dictionary, error) {
	d := &Dictionary{
		personPrefixes: map[string]bool{},
		orgPrefixes:    map[string]bool{},
		objPrefixes:    map[string]bool{},
		orgTypes:       map[string]string{},
		personNames:    map[string]bool{},
	}
	for _, doc := range docs {
		addAll(d.personPrefixes, doc.PersonPrefixes)
		addAll(d.orgPrefixes, doc.OrgPrefixes)
		addAll(d.objPrefixes, doc.ObjPrefixes)
		addAll(d.personNames, doc.PersonNames)
		for canon, variants := range doc.OrgTypes {
			canon = Fold(canon)
			d.orgTypes[canon] = canon
			for _, v := range variants {
				d.orgTypes[Fold(v)] = canon
			}
		}
	}
	d.rePerson = prefixRegex(d.personPrefixes)
	d.reOrg = prefixRegex(d.orgPrefixes)
	d.reObj = prefixRegex(d.objPrefixes)

	var err error
	if d.personMemo, err = lru.New[string, bool](memoSize); err != nil {
		return nil, err
	}
	if d.orgMemo, err = lru.New[string, bool](memoSize); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseDictionary decodes a YAML dictionary document.
func ParseDictionary(data []byte) (DictionaryData, error) {
	var doc DictionaryData
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse name dictionary: %w", err)
	}
	return doc, nil
}

// LoadDictionary builds the embedded dictionary extended with the YAML files at paths.
func LoadDictionary(paths ...string) (*Dictionary, error) {
	base, err := ParseDictionary(embeddedNames)
	if err != nil {
		return nil, err
	}
	docs := []DictionaryData{base}
	for _, p := range paths {
		if p == "" {
			continue
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read name dictionary %s: %w", p, err)
		}
		doc, err := ParseDictionary(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		docs = append(docs, doc)
	}
	return NewDictionary(docs...)
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the embedded dictionary.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		d, err := LoadDictionary()
		if err != nil {
			panic(err)
		}
		defaultDict = d
	})
	return defaultDict
}

func addAll(set map[string]bool, values []string) {
	for _, v := range values {
		if v = Fold(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
}

// prefixRegex matches one leading prefix, optionally followed by a dot.
func prefixRegex(set map[string]bool) *regexp.Regexp {
	if len(set) == 0 {
		return nil
	}
	alts := make([]string, 0, len(set))
	for p := range set {
		alts = append(alts, regexp.QuoteMeta(p))
	}
	// longest first so "mrs" wins over "mr"
	sort.Slice(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	return regexp.MustCompile(`(?i)^\s*(?:` + strings.Join(alts, "|") + `)\.?\s+`)
}

func removePrefixes(re *regexp.Regexp, name string) string {
	if re == nil {
		return strings.TrimSpace(name)
	}
	for {
		loc := re.FindStringIndex(name)
		if loc == nil || loc[1] >= len(name) {
			return strings.TrimSpace(name)
		}
		name = name[loc[1]:]
	}
}

func (d *Dictionary) isPrefixToken(t string) bool {
	return d.personPrefixes[t] || d.orgPrefixes[t] || d.objPrefixes[t]
}

// RemovePersonPrefixes strips honorifics: "Mr. John Doe" becomes "John Doe".
func (d *Dictionary) RemovePersonPrefixes(name string) string {
	return removePrefixes(d.rePerson, name)
}

// RemoveOrgPrefixes strips leading articles from organization names.
func (d *Dictionary) RemoveOrgPrefixes(name string) string {
	return removePrefixes(d.reOrg, name)
}

// RemoveObjPrefixes strips generic leading articles.
func (d *Dictionary) RemoveObjPrefixes(name string) string {
	return removePrefixes(d.reObj, name)
}

// IsGivenName reports whether the token occurs in the personal name list.
func (d *Dictionary) IsGivenName(token string) bool {
	return d.personNames[Fold(token)]
}

// IsPersonPrefix reports whether the token is an honorific.
func (d *Dictionary) IsPersonPrefix(token string) bool {
	return d.personPrefixes[strings.TrimSuffix(Fold(token), ".")]
}

// IsLegalForm reports whether the token is an organization type symbol.
func (d *Dictionary) IsLegalForm(token string) bool {
	_, ok := d.orgTypes[strings.TrimSuffix(Fold(token), ".")]
	return ok
}

// IsPersonName is true when every token of the name, honorifics removed,
// is a known personal name symbol. Names with tokens of two characters or
// fewer never qualify.
func (d *Dictionary) IsPersonName(name string) bool {
	if v, ok := d.personMemo.Get(name); ok {
		return v
	}
	result := d.isPersonName(name)
	d.personMemo.Add(name, result)
	return result
}

func (d *Dictionary) isPersonName(name string) bool {
	tokens := Tokens(d.RemovePersonPrefixes(name))
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if utf8.RuneCountInString(t) <= 2 {
			return false
		}
		if !d.personNames[t] {
			return false
		}
	}
	return true
}

// IsOrgName is true when any token of the name is a legal form.
func (d *Dictionary) IsOrgName(name string) bool {
	if v, ok := d.orgMemo.Get(name); ok {
		return v
	}
	result := false
	for _, t := range Tokens(name) {
		if _, ok := d.orgTypes[t]; ok {
			result = true
			break
		}
	}
	d.orgMemo.Add(name, result)
	return result
}
