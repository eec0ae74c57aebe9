// Package htmlindex implements a SearchProvider that scrapes a plain HTML
// gallery or index page for image links. It suits internal asset catalogs
// that expose search results as markup rather than JSON.
package htmlindex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/pick"
)

// maxResponseBytes bounds the HTML page size.
const maxResponseBytes = 4 << 20

// Config holds the provider settings.
type Config struct {
	// BaseURL is the gallery endpoint; the query is appended as ?q=.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Provider scrapes image URLs out of an HTML result page.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "imagepick-bot/0.1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name identifies the provider in metrics and rate limit keys.
func (p *Provider) Name() string { return "htmlindex" }

// Search fetches the result page and extracts jpeg/png URLs from img tags
// and direct links, in document order.
func (p *Provider) Search(ctx context.Context, query string, exclude pick.ExclusionSet, limit int) ([]string, error) {
	endpoint, err := p.searchURL(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("htmlindex search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("htmlindex search %q: unexpected status %d", query, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("htmlindex parse: %w", err)
	}

	base := resp.Request.URL
	seen := make(map[string]struct{})
	var urls []string
	collect := func(raw string) {
		u := resolveImageURL(base, raw)
		if u == "" || exclude.Has(u) {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		if limit <= 0 || len(urls) < limit {
			urls = append(urls, u)
		}
	}

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			collect(src)
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			collect(href)
		}
	})

	p.logger.Debug("htmlindex search complete",
		zap.String("query", query),
		zap.Int("candidates", len(urls)))
	return urls, nil
}

func (p *Provider) searchURL(query string) (string, error) {
	base, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := base.Query()
	q.Set("q", query)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// resolveImageURL makes raw absolute against the page URL and keeps only
// http(s) URLs with a jpeg/png extension.
func resolveImageURL(base *url.URL, raw string) string {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	switch strings.ToLower(path.Ext(abs.Path)) {
	case ".jpg", ".jpeg", ".png":
		return abs.String()
	default:
		return ""
	}
}
