package juditha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/resolve"
)

const baseURL = "http://juditha.test"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: baseURL + "/", Timeout: time.Second, CacheTTL: time.Minute}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/classify",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Acme Holdings", req.URL.Query().Get("q"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"schema": "Company", "score": 0.83})
		})

	c := newTestClient(t)
	for i := 0; i < 3; i++ {
		cl, err := c.Classify(context.Background(), "Acme Holdings")
		require.NoError(t, err)
		assert.Equal(t, extract.TagOrg, cl.Tag)
		assert.InDelta(t, 0.83, cl.Confidence, 0.0001)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "answers are cached")
}

func TestClassifyUnknownSchemaIsOther(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/classify",
		httpmock.NewStringResponder(http.StatusOK, `{"schema": "Vessel", "score": 0.9}`))

	cl, err := newTestClient(t).Classify(context.Background(), "Ever Given")
	require.NoError(t, err)
	assert.Equal(t, extract.TagOther, cl.Tag)
}

func TestValidate(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", baseURL+"/validate",
		func(req *http.Request) (*http.Response, error) {
			var body validateRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			valid := len(body.Tokens) == 2 && body.Tokens[0] == "john"
			return httpmock.NewJsonResponse(http.StatusOK, map[string]bool{"valid": valid})
		})

	c := newTestClient(t)
	ok, err := c.Validate(context.Background(), []string{"john", "doe"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Validate(context.Background(), []string{"qwx"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupHitAndMiss(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/lookup",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("q") != "Acme Ltd" {
				return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
			}
			assert.Equal(t, "Organization", req.URL.Query().Get("schema"))
			return httpmock.NewJsonResponse(http.StatusOK, lookupResponse{
				ID:        "NK-acme",
				Caption:   "ACME Limited",
				Names:     []string{"ACME Limited"},
				Schema:    "Company",
				Countries: []string{"gb"},
				Score:     0.91,
			})
		})

	c := newTestClient(t)
	m, found, err := c.Lookup(context.Background(), "Acme Ltd", extract.TagOrg)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "NK-acme", m.ID)
	assert.Equal(t, "Company", m.Schema)

	_, found, err = c.Lookup(context.Background(), "Nobody Inc", extract.TagOrg)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.Lookup(context.Background(), "Nobody Inc", extract.TagOrg)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, httpmock.GetTotalCallCount(), "misses are cached too")
}

func TestServerErrors(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/classify",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "overloaded"))
	httpmock.RegisterResponder("POST", baseURL+"/validate",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	c := newTestClient(t)
	_, err := c.Classify(context.Background(), "Acme")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.Code)
	assert.Equal(t, "overloaded", serr.Body)

	_, err = c.Validate(context.Background(), []string{"john"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMalformedResponse(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/classify",
		httpmock.NewStringResponder(http.StatusOK, `{not json`))

	_, err := newTestClient(t).Classify(context.Background(), "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestPipelineOverHTTP(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", baseURL+"/classify",
		httpmock.NewStringResponder(http.StatusOK, `{"schema": "Organization", "score": 0.1}`))
	httpmock.RegisterResponder("GET", baseURL+"/lookup",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	c := newTestClient(t)
	cfg := resolve.DefaultConfig()
	cfg.Classifier, cfg.Lookup = true, true
	p, err := resolve.Build(cfg, resolve.Services{Classifier: c, Lookup: c})
	require.NoError(t, err)

	rejected, err := p.Resolve(context.Background(), resolve.Mention{
		Key: "x", Tag: extract.TagOrg, Value: "X", Values: []string{"X"},
	})
	require.NoError(t, err)
	assert.Equal(t, resolve.StatusRejected, rejected.Status)
	assert.Equal(t, resolve.StageClassifier, rejected.RejectedBy)

	// A location skips the classifier and hits the failing lookup.
	loc, err := p.Resolve(context.Background(), resolve.Mention{
		Key: "oslo", Tag: extract.TagLocation, Value: "Oslo", Values: []string{"Oslo"},
	})
	require.NoError(t, err)
	assert.Equal(t, resolve.StatusAccepted, loc.Status)
	assert.Equal(t, []string{resolve.StageLookup}, loc.Unavailable)
}
