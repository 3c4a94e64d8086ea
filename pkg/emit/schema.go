package emit

import (
	"slices"

	"github.com/japaniel/entityscan/pkg/extract"
)

// parents lists the direct ancestors of each schema we deal with.
var parents = map[string][]string{
	SchemaPerson:       {SchemaLegalEntity},
	SchemaOrganization: {SchemaLegalEntity},
	SchemaCompany:      {SchemaOrganization, "Asset"},
	"PublicBody":       {SchemaOrganization},
	SchemaLegalEntity:  nil,
	SchemaAddress:      nil,
	SchemaBankAccount:  {"Asset"},
	SchemaMention:      nil,
	"Asset":            nil,
}

// Extends returns the schema and all of its ancestors, schema first.
// Unknown schemata only extend themselves.
func Extends(schema string) []string {
	out := []string{schema}
	for i := 0; i < len(out); i++ {
		for _, p := range parents[out[i]] {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// IsA reports whether schema is parent or descends from it.
func IsA(schema, parent string) bool {
	return slices.Contains(Extends(schema), parent)
}

// SchemaForTag is the schema a NER tag stands for, or "".
func SchemaForTag(tag extract.Tag) string {
	switch tag {
	case extract.TagPerson:
		return SchemaPerson
	case extract.TagOrg:
		return SchemaOrganization
	case extract.TagLocation:
		return SchemaAddress
	}
	return ""
}

// Properties of the analyzed record that collect mentions.
const (
	PropNames     = "namesMentioned"
	PropPeople    = "peopleMentioned"
	PropCompanies = "companiesMentioned"
	PropLocations = "locationMentioned"
	PropEmails    = "emailMentioned"
	PropPhones    = "phoneMentioned"
	PropIBANs     = "ibanMentioned"
)

// MentionProps returns the record properties a mention of tag is listed under.
func MentionProps(tag extract.Tag) []string {
	switch tag {
	case extract.TagPerson:
		return []string{PropPeople, PropNames}
	case extract.TagOrg:
		return []string{PropCompanies, PropNames}
	case extract.TagLocation:
		return []string{PropLocations}
	case extract.TagEmail:
		return []string{PropEmails}
	case extract.TagPhone:
		return []string{PropPhones}
	case extract.TagIBAN:
		return []string{PropIBANs}
	}
	return nil
}
