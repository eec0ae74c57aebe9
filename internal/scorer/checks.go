package scorer

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/prodfinder/imagepick/internal/pick"
)

// Check names as they appear in score reports.
const (
	CheckFormat     = "format"
	CheckResolution = "resolution"
	CheckBackground = "background"
	CheckWatermark  = "watermark"
	CheckSubject    = "subject"
)

// extensionFormats maps accepted URL extensions to decoded format names.
var extensionFormats = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
}

// formatCheck requires a .jpg/.jpeg/.png URL extension and decoded bytes of
// the matching format. Disqualifying on any mismatch.
type formatCheck struct{}

func (formatCheck) Name() string { return CheckFormat }

func (formatCheck) Evaluate(in *Input) pick.CheckResult {
	result := pick.CheckResult{Check: CheckFormat, Disqualifies: true}

	ext := urlExtension(in.URL)
	wantFormat, ok := extensionFormats[ext]
	if !ok {
		result.Detail = fmt.Sprintf("unsupported url extension %q", ext)
		return result
	}
	if in.Img == nil {
		result.Detail = "undecodable image data"
		return result
	}
	if in.Format != wantFormat {
		result.Detail = fmt.Sprintf("extension %s but decoded format %s", ext, in.Format)
		return result
	}

	result.Passed = true
	result.Subscore = 100
	result.Detail = in.Format
	return result
}

func urlExtension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(path.Ext(raw))
	}
	return strings.ToLower(path.Ext(u.Path))
}

// resolutionCheck requires both dimensions to meet the configured minimum.
// Disqualifying below minimum; above it the subscore rewards extra area.
type resolutionCheck struct {
	minWidth  int
	minHeight int
}

func (resolutionCheck) Name() string { return CheckResolution }

func (c resolutionCheck) Evaluate(in *Input) pick.CheckResult {
	result := pick.CheckResult{
		Check:        CheckResolution,
		Disqualifies: true,
		Detail:       fmt.Sprintf("%dx%d", in.Width, in.Height),
	}
	if in.Width < c.minWidth || in.Height < c.minHeight {
		result.Detail = fmt.Sprintf("%dx%d below minimum %dx%d", in.Width, in.Height, c.minWidth, c.minHeight)
		return result
	}

	// 50 at exactly the minimum area, 100 at double the minimum or more.
	minArea := float64(c.minWidth) * float64(c.minHeight)
	area := float64(in.Width) * float64(in.Height)
	result.Passed = true
	result.Subscore = clamp(50*area/minArea, 50, 100)
	return result
}
