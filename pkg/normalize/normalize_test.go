package normalize

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"honorific stripped", "Mr. John Doe", "doe+john"},
		{"plain", "John Doe", "doe+john"},
		{"upper case", "JOHN DOE", "doe+john"},
		{"reordered", "Doe, John", "doe+john"},
		{"diacritics", "José Müller", "jose+muller"},
		{"legal form variants", "Acme Limited", "acme+ltd"},
		{"legal form short", "ACME LTD.", "acme+ltd"},
		{"full width", "ＡＣＭＥ", "acme"},
		{"katakana folds to hiragana", "トヨタ", "とよた"},
		{"only punctuation", " -- ", ""},
		{"lone prefix kept", "Mr", "mr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fingerprint(tt.in))
		})
	}
}

func TestFingerprintIsStable(t *testing.T) {
	for _, v := range []string{"Mr. John Doe", "Gazprom", "東京都"} {
		assert.Equal(t, Fingerprint(v), Fingerprint(v))
	}
}

func TestFoldKeepsVoicingMarks(t *testing.T) {
	assert.Equal(t, "がっこう", Fold("ガッコウ"))
	assert.Equal(t, "cafe", Fold("Café"))
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "Jane.Doe@example.org", Email("Jane.Doe@EXAMPLE.org"))
	assert.Equal(t, "abc+netflix@sunu.in", Email(" abc+netflix@sunu.in."))
	assert.Equal(t, "", Email("not an address"))
	assert.Equal(t, "", Email("@example.org"))
	assert.Equal(t, "", Email("jane@localhost"))
}

func TestPhone(t *testing.T) {
	assert.Equal(t, "+15417543010", Phone("+1-541-754-3010", ""))
	assert.Equal(t, "+15417543010", Phone("001-541-754-3010", ""))
	assert.Equal(t, "+15417543010", Phone("(541) 754-3010", "us"))
	assert.Equal(t, "", Phone("(541) 754-3010", ""))
	assert.Equal(t, "", Phone("", "US"))
	assert.Equal(t, "US", PhoneCountry("+15417543010"))
}

func TestIBAN(t *testing.T) {
	assert.Equal(t, "GR1601101050000010547023795", IBAN("GR16 0110 1050 0000 1054 7023 795"))
	assert.Equal(t, "GB98MIDL07009312345678", IBAN("gb98 midl 0700 9312 3456 78"))
	assert.Equal(t, "", IBAN("GB99MIDL07009312345678"), "bad checksum")
	assert.Equal(t, "", IBAN("hello"))
	assert.Equal(t, "GR", IBANCountry("GR1601101050000010547023795"))
}

func TestPickName(t *testing.T) {
	assert.Equal(t, "John Doe", PickName([]string{"JOHN DOE", "John Doe", "john doe"}))
	assert.Equal(t, "Mr. John Doe", PickName([]string{"Mr. John Doe", "John Doe"}), "longer wins among equals")
	assert.Equal(t, "", PickName(nil))
}

func TestDictionaryClassification(t *testing.T) {
	d := Default()

	assert.True(t, d.IsPersonName("Mr. John Doe"))
	assert.True(t, d.IsPersonName("Jane Smith"))
	assert.False(t, d.IsPersonName("Acme Ltd"))
	assert.False(t, d.IsPersonName("Jo Smith"), "short tokens never qualify")

	assert.True(t, d.IsOrgName("Acme Ltd"))
	assert.True(t, d.IsOrgName("Deutsche Bank AG"))
	assert.False(t, d.IsOrgName("John Doe"))

	assert.Equal(t, "John Doe", d.RemovePersonPrefixes("Mr. John Doe"))
	assert.Equal(t, "Jane Doe", d.RemovePersonPrefixes("Mrs Jane Doe"))
	assert.Equal(t, "Dr", d.RemovePersonPrefixes("Dr"))
	assert.Equal(t, "Guardian", d.RemoveOrgPrefixes("The Guardian"))
}

func TestLoadDictionaryExtension(t *testing.T) {
	path := t.TempDir() + "/extra.yml"
	require.NoError(t, os.WriteFile(path, []byte("person_names: [zebedee, quux]\norg_types:\n  kft: [kft]\n"), 0o644))

	d, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.True(t, d.IsPersonName("Zebedee Quux"))
	assert.True(t, d.IsOrgName("Magyar Kft"))
	assert.True(t, d.IsPersonName("John Doe"), "embedded entries are kept")

	_, err = LoadDictionary(t.TempDir() + "/missing.yml")
	assert.Error(t, err)
}
