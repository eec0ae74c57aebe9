// Package searx implements a SearchProvider backed by a SearXNG instance's
// JSON image search API.
package searx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/pick"
	"github.com/prodfinder/imagepick/internal/policy/retry"
)

// maxResponseBytes bounds the JSON response size.
const maxResponseBytes = 4 << 20

// Config holds the provider settings.
type Config struct {
	// BaseURL is the SearXNG instance root, e.g. https://searx.example.com.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Provider queries a SearXNG instance for candidate image URLs.
type Provider struct {
	cfg    Config
	client *http.Client
	policy *retry.Policy
	logger *zap.Logger
}

// New constructs a Provider. A nil policy disables transport retries.
func New(cfg Config, policy *retry.Policy, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "imagepick-bot/0.1"
	}
	if policy == nil {
		policy = retry.NewPolicyWith(1, time.Millisecond, time.Millisecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: policy,
		logger: logger,
	}
}

// Name identifies the provider in metrics and rate limit keys.
func (p *Provider) Name() string { return "searx" }

type searchResponse struct {
	Results []struct {
		ImgSrc string `json:"img_src"`
	} `json:"results"`
}

// Search runs an image search and returns candidate URLs in ranking order.
// Excluded URLs are dropped before the limit is applied so a heavily
// excluded product still gets a full page of fresh candidates.
func (p *Provider) Search(ctx context.Context, query string, exclude pick.ExclusionSet, limit int) ([]string, error) {
	endpoint, err := p.searchURL(query)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	err = retry.Do(ctx, p.policy, func() error {
		return p.fetchResults(ctx, endpoint, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("searx search %q: %w", query, err)
	}

	urls := make([]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		u := normalizeImgSrc(r.ImgSrc)
		if u == "" || exclude.Has(u) {
			continue
		}
		urls = append(urls, u)
		if limit > 0 && len(urls) >= limit {
			break
		}
	}
	p.logger.Debug("searx search complete",
		zap.String("query", query),
		zap.Int("results", len(parsed.Results)),
		zap.Int("candidates", len(urls)))
	return urls, nil
}

func (p *Provider) searchURL(query string) (string, error) {
	base, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/search"
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "images")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (p *Provider) fetchResults(ctx context.Context, endpoint string, out *searchResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	*out = searchResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// normalizeImgSrc resolves protocol-relative sources and rejects anything
// that is not an absolute http(s) URL.
func normalizeImgSrc(src string) string {
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return src
}
