package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/entityscan/pkg/extract"
)

func TestRigourStage(t *testing.T) {
	s := NewRigourStage(nil)
	cases := []struct {
		name    string
		tag     extract.Tag
		values  []string
		wantTag extract.Tag
		want    string
	}{
		{"person by dictionary", extract.TagOrg, []string{"Dr. Jane Smith"}, extract.TagPerson, "Jane Smith"},
		{"org by legal form", extract.TagPerson, []string{"The Acme Ltd"}, extract.TagOrg, "Acme Ltd"},
		{"location keeps tag", extract.TagLocation, []string{"The Hague"}, extract.TagLocation, "Hague"},
		{"unknown person keeps tag", extract.TagPerson, []string{"Zorblat Quux"}, extract.TagPerson, "Zorblat Quux"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Mention{Tag: tc.tag, Value: tc.values[0], Values: tc.values}
			out, err := s.Apply(context.Background(), m)
			require.NoError(t, err)
			assert.Equal(t, tc.wantTag, out.Tag)
			assert.Equal(t, tc.want, out.Value)
			assert.Equal(t, StatusPending, out.Status)
		})
	}
}

func TestClassifierStageFlipsTags(t *testing.T) {
	ctx := context.Background()
	toPerson := &fakeClassifier{result: Classification{Tag: extract.TagPerson, Confidence: 0.9}}
	s := NewClassifierStage(toPerson, 0.5, true)

	out, err := s.Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Kim Lee"})
	require.NoError(t, err)
	assert.Equal(t, extract.TagPerson, out.Tag)

	out, err = s.Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Northern Shipping Holdings"})
	require.NoError(t, err)
	assert.Equal(t, extract.TagOrg, out.Tag, "long organization names stay organizations")

	toOrg := &fakeClassifier{result: Classification{Tag: extract.TagOrg, Confidence: 0.9}}
	out, err = NewClassifierStage(toOrg, 0.5, true).Apply(ctx, Mention{Tag: extract.TagPerson, Value: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, extract.TagOrg, out.Tag)
}

func TestClassifierStageOther(t *testing.T) {
	ctx := context.Background()
	other := &fakeClassifier{result: Classification{Tag: extract.TagOther, Confidence: 0.9}}

	out, err := NewClassifierStage(other, 0.5, true).Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Monday"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonClassifiedOther, out.RejectReason)

	out, err = NewClassifierStage(other, 0.5, false).Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Monday"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, extract.TagOrg, out.Tag)
}

func TestClassifierStageSkipsLocations(t *testing.T) {
	clf := &fakeClassifier{}
	out, err := NewClassifierStage(clf, 0.5, true).Apply(context.Background(), Mention{Tag: extract.TagLocation, Value: "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)
	assert.Zero(t, clf.calls.Load())
}

func TestValidatorStage(t *testing.T) {
	ctx := context.Background()
	pass := &fakeValidator{ok: true}
	out, err := NewValidatorStage(pass).Apply(ctx, Mention{Tag: extract.TagPerson, Value: "John Doe"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, []string{"john", "doe"}, pass.tokens)

	fail := &fakeValidator{ok: false}
	out, err = NewValidatorStage(fail).Apply(ctx, Mention{Tag: extract.TagPerson, Value: "Qwx Zzt"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonNameValidation, out.RejectReason)

	out, err = NewValidatorStage(fail).Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Qwx Zzt"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status, "only persons are validated")
}

func TestGeonamesStageSkipsPersonNames(t *testing.T) {
	gaz := &fakeGazetteer{places: map[string]Location{"John Smith": {Name: "Smithville", Country: "US"}}}
	out, err := NewGeonamesStage(gaz, nil, true).Apply(context.Background(),
		Mention{Tag: extract.TagLocation, Value: "John Smith", Values: []string{"John Smith"}})
	require.NoError(t, err)
	assert.Zero(t, gaz.calls.Load())
	assert.Equal(t, StatusRejected, out.Status)
}

func TestLookupStage(t *testing.T) {
	ctx := context.Background()
	hit := &fakeLookup{found: true, match: Match{
		ID:        "NK-1",
		Caption:   "ACME Limited",
		Names:     []string{"ACME Limited", "Acme Ltd"},
		Schema:    "Company",
		Countries: []string{"gb"},
		Score:     0.92,
	}}
	out, err := NewLookupStage(hit, 0.8).Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Acme Ltd", Values: []string{"Acme Ltd"}})
	require.NoError(t, err)
	require.NotNil(t, out.ResolvedID)
	assert.Equal(t, "NK-1", *out.ResolvedID)
	assert.Equal(t, "ACME Limited", *out.CanonicalName)
	assert.Equal(t, "Company", *out.ResolvedSchema)
	assert.Equal(t, "gb", *out.Country)
	assert.Equal(t, []string{"Acme Ltd", "ACME Limited"}, out.ResolvedValues)
	assert.Equal(t, StatusPending, out.Status)

	weak := &fakeLookup{found: true, match: Match{ID: "NK-2", Score: 0.4}}
	out, err = NewLookupStage(weak, 0.8).Apply(ctx, Mention{Tag: extract.TagOrg, Value: "Acme"})
	require.NoError(t, err)
	assert.Nil(t, out.ResolvedID)
	assert.Equal(t, StatusPending, out.Status, "a miss is never a rejection")
}
