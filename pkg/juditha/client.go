// Package juditha talks to a juditha name service over HTTP. One client
// backs the classifier, name validator and entity lookup stages.
package juditha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/extract"
	"github.com/japaniel/entityscan/pkg/resolve"
)

// ErrNotFound is returned by the transport for a 404. Lookup turns it into a miss.
var ErrNotFound = errors.New("juditha: not found")

// StatusError is a non-2xx response other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("juditha: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("juditha: unexpected status %d: %s", e.Code, e.Body)
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:  5 * time.Second,
		CacheTTL: 30 * time.Minute,
	}
}

// Client is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	logger     *zap.Logger
}

// NewClient creates a client for the service at config.BaseURL.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("juditha: base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("juditha: invalid base URL: %w", err)
	}
	defaults := DefaultConfig()
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
		logger:     logger.With(zap.String("component", "juditha")),
	}, nil
}

type classifyResponse struct {
	Schema string  `json:"schema"`
	Score  float64 `json:"score"`
}

type validateRequest struct {
	Tokens []string `json:"tokens"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type lookupResponse struct {
	ID        string   `json:"id"`
	Caption   string   `json:"caption"`
	Names     []string `json:"names"`
	Schema    string   `json:"schema"`
	Countries []string `json:"countries"`
	Score     float64  `json:"score"`
}

// lookupMiss is cached so repeated misses do not hit the service.
type lookupMiss struct{}

// Classify predicts the entity type of a name.
func (c *Client) Classify(ctx context.Context, value string) (resolve.Classification, error) {
	cacheKey := "classify:" + value
	if cached, found := c.cache.Get(cacheKey); found {
		if cl, ok := cached.(resolve.Classification); ok {
			return cl, nil
		}
	}

	q := url.Values{"q": {value}}
	var resp classifyResponse
	if err := c.do(ctx, http.MethodGet, "/classify?"+q.Encode(), nil, &resp); err != nil {
		return resolve.Classification{}, err
	}
	cl := resolve.Classification{Tag: schemaTag(resp.Schema), Confidence: resp.Score}
	c.cache.Set(cacheKey, cl, cache.DefaultExpiration)
	return cl, nil
}

// Validate reports whether the name tokens are known personal name parts.
func (c *Client) Validate(ctx context.Context, tokens []string) (bool, error) {
	cacheKey := "validate:" + strings.Join(tokens, " ")
	if cached, found := c.cache.Get(cacheKey); found {
		if ok, isBool := cached.(bool); isBool {
			return ok, nil
		}
	}

	var resp validateResponse
	if err := c.do(ctx, http.MethodPost, "/validate", validateRequest{Tokens: tokens}, &resp); err != nil {
		return false, err
	}
	c.cache.Set(cacheKey, resp.Valid, cache.DefaultExpiration)
	return resp.Valid, nil
}

// Lookup finds a known entity by name. A 404 is a miss, not an error.
func (c *Client) Lookup(ctx context.Context, value string, tag extract.Tag) (resolve.Match, bool, error) {
	cacheKey := "lookup:" + string(tag) + ":" + value
	if cached, found := c.cache.Get(cacheKey); found {
		switch v := cached.(type) {
		case resolve.Match:
			return v, true, nil
		case lookupMiss:
			return resolve.Match{}, false, nil
		}
	}

	q := url.Values{"q": {value}}
	if schema := tagSchema(tag); schema != "" {
		q.Set("schema", schema)
	}
	var resp lookupResponse
	err := c.do(ctx, http.MethodGet, "/lookup?"+q.Encode(), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		c.cache.Set(cacheKey, lookupMiss{}, cache.DefaultExpiration)
		return resolve.Match{}, false, nil
	}
	if err != nil {
		return resolve.Match{}, false, err
	}

	m := resolve.Match{
		ID:        resp.ID,
		Caption:   resp.Caption,
		Names:     resp.Names,
		Schema:    resp.Schema,
		Countries: resp.Countries,
		Score:     resp.Score,
	}
	c.cache.Set(cacheKey, m, cache.DefaultExpiration)
	return m, true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("juditha: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("juditha: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("juditha: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("juditha request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("juditha: decode %s response: %w", path, err)
	}
	return nil
}

func schemaTag(schema string) extract.Tag {
	switch schema {
	case "LegalEntity", "PublicBody":
		return extract.TagOrg
	}
	if tag, ok := extract.ParseTag(schema); ok && tag.IsName() {
		return tag
	}
	return extract.TagOther
}

func tagSchema(tag extract.Tag) string {
	switch tag {
	case extract.TagPerson:
		return "Person"
	case extract.TagOrg:
		return "Organization"
	case extract.TagLocation:
		return "Address"
	}
	return ""
}
