// Package emit turns resolved mentions and pattern hits into output entities.
package emit

import (
	"crypto/sha1"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
)

// Schemata produced by the factory.
const (
	SchemaMention      = "Mention"
	SchemaPerson       = "Person"
	SchemaOrganization = "Organization"
	SchemaCompany      = "Company"
	SchemaLegalEntity  = "LegalEntity"
	SchemaAddress      = "Address"
	SchemaBankAccount  = "BankAccount"
)

// Provenance records where an entity came from.
type Provenance struct {
	DocumentID string   `json:"document_id"`
	Stage      string   `json:"stage,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// Entity is an output record: a schema plus multi-valued properties.
type Entity struct {
	ID         string              `json:"id"`
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
	Provenance Provenance          `json:"provenance"`
}

func NewEntity(schema, id string) *Entity {
	return &Entity{ID: id, Schema: schema, Properties: map[string][]string{}}
}

// Add appends values to a property, skipping blanks and duplicates.
func (e *Entity) Add(prop string, values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(e.Properties[prop], v) {
			continue
		}
		e.Properties[prop] = append(e.Properties[prop], v)
	}
}

func (e *Entity) Get(prop string) []string { return e.Properties[prop] }

func (e *Entity) First(prop string) string {
	if vs := e.Properties[prop]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Merge adds all properties of other. Schema and id are kept.
func (e *Entity) Merge(other *Entity) {
	for _, prop := range slices.Sorted(maps.Keys(other.Properties)) {
		e.Add(prop, other.Properties[prop]...)
	}
	for _, s := range other.Provenance.Sources {
		if !slices.Contains(e.Provenance.Sources, s) {
			e.Provenance.Sources = append(e.Provenance.Sources, s)
		}
	}
}

func (e *Entity) IsA(schema string) bool { return IsA(e.Schema, schema) }

// Caption is the first name-like property value, else the id.
func (e *Entity) Caption() string {
	for _, prop := range []string{"name", "iban", "title"} {
		if v := e.First(prop); v != "" {
			return v
		}
	}
	return e.ID
}

// MakeID hashes the non-empty parts into a stable hex id. It returns "" when
// every part is empty.
func MakeID(parts ...string) string {
	h := sha1.New()
	used := false
	for _, p := range parts {
		if p == "" {
			continue
		}
		h.Write([]byte(p))
		used = true
	}
	if !used {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Slug lowercases s and joins its letter and digit runs with "-".
func Slug(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "-")
}
