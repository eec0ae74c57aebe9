// Package httpimg implements the image fetcher over plain HTTP.
package httpimg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/pick"
)

// allowedContentTypes is the fetch-time content type allowlist. Anything else
// is rejected before a single candidate byte reaches the scorer.
var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Config controls Fetcher behavior.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// Fetcher downloads candidate image bytes with a size and time ceiling.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// New constructs a Fetcher. A nil client gets a default one with the
// configured timeout.
func New(client *http.Client, cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 8 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "imagepick-bot/0.1"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch downloads the image at url. Every failure is returned as an error for
// the caller to record against that candidate; nothing here is fatal to a
// selection pass.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pick.FetchResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return pick.FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/jpeg, image/png")

	resp, err := f.client.Do(req)
	if err != nil {
		return pick.FetchResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.String("url", url), zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pick.FetchResult{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return pick.FetchResult{}, fmt.Errorf("fetch %s: unsupported content type %q", url, contentType)
	}

	// Read one byte past the ceiling so oversized payloads are detectable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return pick.FetchResult{}, fmt.Errorf("read body %s: %w", url, err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return pick.FetchResult{}, fmt.Errorf("fetch %s: payload exceeds %d bytes", url, f.cfg.MaxBytes)
	}
	if len(body) == 0 {
		return pick.FetchResult{}, fmt.Errorf("fetch %s: empty body", url)
	}

	return pick.FetchResult{Body: body, ContentType: contentType}, nil
}
