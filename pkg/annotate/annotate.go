// Package annotate marks up mentions inside text for an annotated-text search
// index:
//
//	lorem [Mrs. Jane Doe](c_LegalEntity&c_Person&f_doe+jane&p_namesMentioned&p_peopleMentioned) ipsum
package annotate

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/japaniel/entityscan/pkg/emit"
	"github.com/japaniel/entityscan/pkg/normalize"
)

// Marker prefixes every annotated text.
const Marker = "__annotated__"

const skipChars = "()[]"

// namedProps are the properties whose values are names.
var namedProps = []string{emit.PropNames, emit.PropPeople, emit.PropCompanies}

// mentionProps are the only properties worth annotating.
var mentionProps = []string{
	emit.PropNames, emit.PropPeople, emit.PropCompanies, emit.PropLocations,
	emit.PropEmails, emit.PropPhones, emit.PropIBANs,
}

// CleanText removes characters that would clash with the markup and
// collapses whitespace.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(skipChars, r) {
			return ' '
		}
		return r
	}, text)
	return normalize.CollapseSpaces(text)
}

// Annotation collects everything known about one surface form.
type Annotation struct {
	Value    string
	Names    []string
	Schemata []string
	Props    []string
}

func (a *Annotation) IsName() bool {
	for _, p := range a.Props {
		if slices.Contains(namedProps, p) {
			return true
		}
	}
	return false
}

func (a *Annotation) update(other Annotation) {
	a.Names = union(a.Names, other.Names)
	a.Schemata = union(a.Schemata, other.Schemata)
	a.Props = union(a.Props, other.Props)
}

func (a *Annotation) schemata() []string {
	if !a.IsName() {
		return nil
	}
	if len(a.Schemata) > 0 {
		return a.Schemata
	}
	switch {
	case slices.Contains(a.Props, emit.PropPeople):
		return emit.Extends(emit.SchemaPerson)
	case slices.Contains(a.Props, emit.PropCompanies):
		return emit.Extends(emit.SchemaOrganization)
	}
	return nil
}

// Tokens are the sorted query parts of the annotation.
func (a *Annotation) Tokens() []string {
	set := map[string]bool{}
	if a.IsName() {
		set["p_"+emit.PropNames] = true
		for _, n := range append([]string{a.Value}, a.Names...) {
			if fp := normalize.Fingerprint(n); fp != "" {
				set["f_"+fp] = true
			}
		}
	}
	for _, p := range a.Props {
		set["p_"+p] = true
	}
	for _, s := range a.schemata() {
		set["c_"+s] = true
	}
	return slices.Sorted(maps.Keys(set))
}

// Markup is the replacement text for the annotation's value.
func (a *Annotation) Markup() string {
	tokens := a.Tokens()
	if len(tokens) == 0 {
		return a.Value
	}
	return "[" + a.Value + "](" + strings.Join(tokens, "&") + ")"
}

// Annotator accumulates annotations for one record. Not safe for concurrent use.
type Annotator struct {
	annotations map[string]*Annotation
}

func New() *Annotator {
	return &Annotator{annotations: map[string]*Annotation{}}
}

func (an *Annotator) Len() int { return len(an.annotations) }

func (an *Annotator) add(a Annotation) {
	a.Value = CleanText(a.Value)
	if a.Value == "" {
		return
	}
	relevant := false
	for _, p := range a.Props {
		if slices.Contains(mentionProps, p) {
			relevant = true
			break
		}
	}
	if !relevant {
		return
	}
	if existing, ok := an.annotations[a.Value]; ok {
		existing.update(a)
		return
	}
	an.annotations[a.Value] = &a
}

// AddTag annotates value with a record property such as peopleMentioned.
func (an *Annotator) AddTag(prop, value string) {
	an.add(Annotation{Value: value, Props: []string{prop}})
}

// AddEntity annotates value as a mention of e. Only legal entities qualify;
// anything else is ignored.
func (an *Annotator) AddEntity(value string, e *emit.Entity) {
	if e == nil || !e.IsA(emit.SchemaLegalEntity) {
		return
	}
	props := []string{emit.PropNames}
	if e.IsA(emit.SchemaOrganization) {
		props = append(props, emit.PropCompanies)
	}
	if e.IsA(emit.SchemaPerson) {
		props = append(props, emit.PropPeople)
	}
	schemata := slices.DeleteFunc(emit.Extends(e.Schema), func(s string) bool { return s == "Asset" })
	an.add(Annotation{
		Value:    value,
		Names:    slices.Clone(e.Get("name")),
		Schemata: schemata,
		Props:    props,
	})
}

// AnnotateText cleans text and replaces every annotated value with its
// markup. Longer values win where values overlap.
func (an *Annotator) AnnotateText(text string) string {
	text = CleanText(text)
	if len(an.annotations) == 0 || text == "" {
		return text
	}
	values := slices.SortedFunc(maps.Keys(an.annotations), func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	pairs := make([]string, 0, 2*len(values))
	for _, v := range values {
		pairs = append(pairs, v, an.annotations[v].Markup())
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Texts annotates each text and prefixes it with Marker. Empty texts are dropped.
func (an *Annotator) Texts(texts []string) []string {
	var out []string
	for _, t := range texts {
		if annotated := an.AnnotateText(t); annotated != "" {
			out = append(out, Marker+" "+annotated)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
