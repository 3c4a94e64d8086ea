package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/analyze"
)

// DefaultMaxBodySize caps pages fetched from untrusted URLs.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Fetcher downloads web pages with browser-like headers, since many news
// sites answer 403 to bare clients.
type Fetcher struct {
	Client      *http.Client
	MaxBodySize int64
	Logger      *zap.Logger
}

func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		Client:      &http.Client{Timeout: 30 * time.Second},
		MaxBodySize: DefaultMaxBodySize,
		Logger:      logger,
	}
}

// Fetch returns the body of rawURL. Non-200 answers and bodies over the size
// limit are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8,ja;q=0.7")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > f.MaxBodySize {
		return nil, fmt.Errorf("fetch %s: content length %d exceeds limit of %d bytes", rawURL, resp.ContentLength, f.MaxBodySize)
	}

	// One byte past the limit tells a truncated body from one that fits exactly.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.MaxBodySize {
		return nil, fmt.Errorf("fetch %s: body exceeds limit of %d bytes", rawURL, f.MaxBodySize)
	}

	f.Logger.Debug("page fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)),
	)
	return body, nil
}

// Record fetches rawURL and extracts its article.
func (f *Fetcher) Record(ctx context.Context, rawURL string) (analyze.Record, error) {
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return analyze.Record{}, err
	}
	return FromHTML(body, rawURL)
}
