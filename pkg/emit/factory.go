package emit

import (
	"slices"

	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/aggregate"
	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/normalize"
	"github.com/japaniel/entityscan/pkg/resolve"
	"github.com/japaniel/entityscan/pkg/trace"
)

// Factory maps final mentions and IBAN hits to entities.
type Factory struct {
	dict   *normalize.Dictionary
	tracer *trace.Tracer
	logger *zap.Logger
}

func NewFactory(dict *normalize.Dictionary, tracer *trace.Tracer, logger *zap.Logger) *Factory {
	if dict == nil {
		dict = normalize.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{dict: dict, tracer: tracer, logger: logger}
}

// FromMention returns the single entity for an accepted mention: the resolved
// entity when a lookup linked it, else a Mention record. Anything not
// accepted yields nil. countries are the countries known for the document.
func (f *Factory) FromMention(m resolve.Mention, countries []string) *Entity {
	if m.Status != resolve.StatusAccepted {
		return nil
	}
	names := f.names(m)
	if len(names) == 0 {
		return nil
	}
	countries = withCountry(countries, m)

	var e *Entity
	if m.ResolvedID != nil && *m.ResolvedID != "" {
		schema := SchemaForTag(m.Tag)
		if m.ResolvedSchema != nil && *m.ResolvedSchema != "" {
			schema = *m.ResolvedSchema
		}
		if schema == "" {
			schema = SchemaLegalEntity
		}
		e = NewEntity(schema, *m.ResolvedID)
		e.Add("name", names...)
		e.Add("proof", string(m.Document))
		if !IsA(schema, SchemaAddress) {
			e.Add("country", countries...)
		}
		e.Provenance.Stage = m.ResolvedBy
	} else {
		detected := SchemaForTag(m.Tag)
		if detected == "" {
			return nil
		}
		props := MentionProps(m.Tag)
		e = NewEntity(SchemaMention, MakeID("mention", string(m.Document), props[0], m.Key))
		e.Add("resolved", MakeID(m.Key))
		e.Add("document", string(m.Document))
		e.Add("name", names...)
		e.Add("detectedSchema", detected)
		e.Add("contextCountry", countries...)
	}

	e.Provenance.DocumentID = string(m.Document)
	e.Provenance.Sources = slices.Clone(m.Sources)
	f.tracer.Entity(e.Schema, e.ID)
	f.logger.Debug("entity created",
		zap.String("schema", e.Schema),
		zap.String("id", e.ID),
		zap.String("caption", m.Caption()),
	)
	return e
}

// FromPattern returns the entities an aggregated pattern hit stands for: one
// BankAccount per valid IBAN. Emails and phones only become record properties.
func (f *Factory) FromPattern(r aggregate.AggregatedResult, doc resolve.DocumentRef) []*Entity {
	if r.Tag != extract.TagIBAN {
		return nil
	}
	iban := normalize.IBAN(r.Key)
	if iban == "" {
		return nil
	}
	e := f.BankAccount(iban, doc)
	e.Provenance.Sources = slices.Clone(r.Sources)
	return []*Entity{e}
}

// BankAccount builds the account entity for a normalized IBAN.
func (f *Factory) BankAccount(iban string, doc resolve.DocumentRef) *Entity {
	e := NewEntity(SchemaBankAccount, Slug("iban "+iban))
	e.Add("proof", string(doc))
	e.Add("accountNumber", iban)
	e.Add("iban", iban)
	e.Add("country", normalize.IBANCountry(iban))
	e.Provenance.DocumentID = string(doc)
	f.tracer.Entity(e.Schema, e.ID)
	f.logger.Debug("bank account created", zap.String("iban", iban))
	return e
}

// names collects the caption and every surface form, cleaned for the tag.
func (f *Factory) names(m resolve.Mention) []string {
	clean := f.dict.RemoveObjPrefixes
	switch m.Tag {
	case extract.TagPerson:
		clean = f.dict.RemovePersonPrefixes
	case extract.TagOrg:
		clean = f.dict.RemoveOrgPrefixes
	}

	var names []string
	add := func(v string) {
		v = normalize.CollapseSpaces(v)
		if v != "" && !slices.Contains(names, v) {
			names = append(names, v)
		}
	}
	add(m.Caption())
	for _, v := range m.Values {
		add(clean(v))
	}
	for _, v := range m.ResolvedValues {
		add(clean(v))
	}
	return names
}

func withCountry(countries []string, m resolve.Mention) []string {
	out := slices.Clone(countries)
	if m.Country != nil && *m.Country != "" && !slices.Contains(out, *m.Country) {
		out = append(out, *m.Country)
	}
	return out
}
