// Package selector searches a provider for candidate images, evaluates them,
// and picks the best-scoring survivor for a product.
package selector

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
)

// Config holds the selection knobs.
type Config struct {
	// MaxCandidates bounds how many provider results are evaluated per round.
	MaxCandidates int
	// HashDistance is the perceptual-hash distance at or below which two
	// candidates are considered the same image.
	HashDistance int
	// ArchivePrefix is prepended to every archived object path.
	ArchivePrefix string
}

// Selector wires the provider, fetcher and scorer into one evaluation round.
type Selector struct {
	cfg      Config
	provider pick.SearchProvider
	fetcher  pick.Fetcher
	scorer   pick.Scorer
	blobs    pick.BlobStore
	logger   *zap.Logger
}

// New constructs a Selector. The blob store is optional; when nil the winner
// bytes are not archived.
func New(cfg Config, provider pick.SearchProvider, fetcher pick.Fetcher, scorer pick.Scorer, blobs pick.BlobStore, logger *zap.Logger) *Selector {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 8
	}
	if cfg.HashDistance <= 0 {
		cfg.HashDistance = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		cfg:      cfg,
		provider: provider,
		fetcher:  fetcher,
		scorer:   scorer,
		blobs:    blobs,
		logger:   logger,
	}
}

type candidate struct {
	url    string
	order  int
	body   []byte
	ctype  string
	report pick.ScoreReport
}

// Select runs one evaluation round: search, filter exclusions, dedupe, fetch,
// score, rank. Candidates that fail to fetch or are disqualified land in
// Failed so the caller can exclude them from future rounds. A round with no
// passing candidate returns Found=false and a nil error.
func (s *Selector) Select(ctx context.Context, productName string, exclusions pick.ExclusionSet, maxCandidates int) (pick.SelectionResult, error) {
	if maxCandidates <= 0 {
		maxCandidates = s.cfg.MaxCandidates
	}

	start := time.Now()
	defer func() {
		metrics.ObserveSelectionDuration(time.Since(start))
	}()

	urls, err := s.provider.Search(ctx, productName, exclusions, maxCandidates)
	if err != nil {
		metrics.ObserveSearch(s.provider.Name(), "error")
		return pick.SelectionResult{}, fmt.Errorf("search %q: %w", productName, err)
	}
	metrics.ObserveSearch(s.provider.Name(), "ok")

	result := pick.SelectionResult{}
	var passing []candidate
	hashes := newHashIndex(s.cfg.HashDistance)
	seen := make(map[string]struct{}, len(urls))

	for i, u := range urls {
		if len(passing)+len(result.Failed) >= maxCandidates {
			break
		}
		// Providers are asked to honor exclusions, but we never trust them to.
		if exclusions.Has(u) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		fetched, err := s.fetcher.Fetch(ctx, u)
		if err != nil {
			s.logger.Debug("candidate fetch failed",
				zap.String("product", productName),
				zap.String("url", u),
				zap.Error(err))
			metrics.ObserveCandidate("fetch_error")
			result.Failed = append(result.Failed, u)
			continue
		}

		if prior, dup := hashes.add(u, fetched.Body); dup {
			s.logger.Debug("candidate is perceptual duplicate",
				zap.String("product", productName),
				zap.String("url", u),
				zap.String("duplicate_of", prior))
			metrics.ObserveCandidate("duplicate")
			continue
		}

		report := s.scorer.Score(u, fetched.Body)
		result.Evaluated++
		if !report.PassesThreshold {
			metrics.ObserveCandidate("rejected")
			result.Failed = append(result.Failed, u)
			continue
		}

		metrics.ObserveCandidate("passed")
		passing = append(passing, candidate{
			url:    u,
			order:  i,
			body:   fetched.Body,
			ctype:  fetched.ContentType,
			report: report,
		})
	}

	if len(passing) == 0 {
		return result, nil
	}

	// Highest score wins; ties break on pixel area, then provider order.
	sort.SliceStable(passing, func(a, b int) bool {
		if passing[a].report.Score != passing[b].report.Score {
			return passing[a].report.Score > passing[b].report.Score
		}
		if passing[a].report.Area() != passing[b].report.Area() {
			return passing[a].report.Area() > passing[b].report.Area()
		}
		return passing[a].order < passing[b].order
	})

	winner := passing[0]
	result.Found = true
	result.URL = winner.url
	result.Report = winner.report
	result.BlobURI = s.archive(ctx, productName, winner)
	return result, nil
}

// archive uploads the winning bytes. Failures are logged and swallowed: the
// archive copy is a convenience, not part of the selection contract.
func (s *Selector) archive(ctx context.Context, productName string, winner candidate) string {
	if s.blobs == nil {
		return ""
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	name := fmt.Sprintf("%s/%s%s", slug(productName), id, urlExt(winner.url))
	if s.cfg.ArchivePrefix != "" {
		name = s.cfg.ArchivePrefix + "/" + name
	}
	uri, err := s.blobs.PutObject(ctx, name, winner.ctype, winner.body)
	if err != nil {
		s.logger.Warn("archiving winner failed",
			zap.String("product", productName),
			zap.String("url", winner.url),
			zap.Error(err))
		return ""
	}
	return uri
}

func urlExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Ext(raw)
	}
	return path.Ext(u.Path)
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
