// Package scorer evaluates candidate image bytes against an ordered pipeline
// of quality checks and produces a deterministic score report.
package scorer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
)

// Config holds the scoring thresholds and toggles.
type Config struct {
	MinWidth            int
	MinHeight           int
	ScoreThreshold      float64
	WatermarkConfidence float64
	SubjectCheckEnabled bool
	// Weights maps check name to weight. Unlisted checks get weight 1.
	Weights map[string]float64
}

// Input is the decoded view of one candidate shared by all checks.
type Input struct {
	URL    string
	Body   []byte
	Img    image.Image
	Width  int
	Height int
	Format string
	Meta   *Metadata
}

// Check is one quality validator. Checks are independent and run in a fixed
// order, cheapest and most decisive first.
type Check interface {
	Name() string
	Evaluate(in *Input) pick.CheckResult
}

// Scorer runs the check pipeline. It is pure: identical bytes and
// configuration always produce an identical report.
type Scorer struct {
	cfg    Config
	checks []Check
	logger *zap.Logger
}

// New constructs a Scorer with the fixed check order: format, resolution,
// background complexity, watermark, and (when enabled) subject.
func New(cfg Config, logger *zap.Logger) *Scorer {
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = 800
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = 800
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 60
	}
	if cfg.WatermarkConfidence <= 0 {
		cfg.WatermarkConfidence = 0.65
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	checks := []Check{
		formatCheck{},
		resolutionCheck{minWidth: cfg.MinWidth, minHeight: cfg.MinHeight},
		backgroundCheck{},
		watermarkCheck{confidence: cfg.WatermarkConfidence},
	}
	if cfg.SubjectCheckEnabled {
		checks = append(checks, subjectCheck{})
	}

	return &Scorer{
		cfg:    cfg,
		checks: checks,
		logger: logger,
	}
}

// Score runs every check over the candidate bytes. A disqualifying failure
// short-circuits the pipeline and zeroes the report. Internal failures
// (undecodable bytes) surface as a disqualified format check, never an error.
func (s *Scorer) Score(url string, body []byte) pick.ScoreReport {
	in := s.buildInput(url, body)

	report := pick.ScoreReport{
		Width:  in.Width,
		Height: in.Height,
		Format: in.Format,
	}

	var weightedSum, weightTotal float64
	for _, check := range s.checks {
		result := check.Evaluate(in)
		report.Checks = append(report.Checks, result)

		if !result.Passed {
			metrics.ObserveCheckFailure(result.Check)
		}
		if result.Disqualifies && !result.Passed {
			report.Score = 0
			report.PassesThreshold = false
			return report
		}

		w := s.weightFor(result.Check)
		weightedSum += w * result.Subscore
		weightTotal += w
	}

	if weightTotal > 0 {
		report.Score = weightedSum / weightTotal
	}
	report.PassesThreshold = report.Score >= s.cfg.ScoreThreshold
	return report
}

func (s *Scorer) weightFor(check string) float64 {
	if w, ok := s.cfg.Weights[check]; ok && w > 0 {
		return w
	}
	return 1
}

func (s *Scorer) buildInput(url string, body []byte) *Input {
	in := &Input{URL: url, Body: body}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err == nil {
		in.Width = cfg.Width
		in.Height = cfg.Height
		in.Format = format
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		s.logger.Debug("candidate decode failed", zap.String("url", url), zap.Error(err))
		return in
	}
	in.Img = img
	in.Format = format
	bounds := img.Bounds()
	in.Width = bounds.Dx()
	in.Height = bounds.Dy()
	in.Meta = ExtractMetadata(body)
	return in
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
