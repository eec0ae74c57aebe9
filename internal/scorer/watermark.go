package scorer

import (
	"fmt"
	"strings"

	"github.com/prodfinder/imagepick/internal/pick"
)

// bandFraction is the height of the top and bottom strips, as a fraction of
// image height, scanned for overlay text.
const bandFraction = 0.2

// stockKeywords are rights-field substrings that indicate an agency watermark.
var stockKeywords = []string{
	"shutterstock",
	"gettyimages",
	"getty images",
	"istockphoto",
	"istock",
	"alamy",
	"depositphotos",
	"dreamstime",
	"123rf",
	"adobe stock",
	"adobestock",
	"watermark",
}

// watermarkCheck detects overlaid text or logos. It combines a visual signal
// (edge energy concentrated in the top/bottom text bands relative to the
// image middle) with a metadata signal (rights fields naming a stock agency).
// Confidence at or above the configured threshold disqualifies.
type watermarkCheck struct {
	confidence float64
}

func (watermarkCheck) Name() string { return CheckWatermark }

func (c watermarkCheck) Evaluate(in *Input) pick.CheckResult {
	result := pick.CheckResult{Check: CheckWatermark, Disqualifies: true}
	if in.Img == nil {
		result.Passed = true
		result.Subscore = 50
		result.Detail = "no decoded image"
		return result
	}

	visual := visualTextConfidence(in)
	meta := metadataRightsConfidence(in.Meta)
	conf := visual + meta
	if conf > 1 {
		conf = 1
	}

	result.Detail = fmt.Sprintf("confidence %.2f (visual %.2f, metadata %.2f)", conf, visual, meta)
	if conf >= c.confidence {
		return result
	}

	result.Passed = true
	result.Subscore = clamp(100*(1-conf), 0, 100)
	return result
}

// visualTextConfidence measures how much edge energy sits in the horizontal
// text bands compared with the image middle. Overlay text and logo strips
// produce dense, band-limited edges.
func visualTextConfidence(in *Input) float64 {
	small := downscale(in.Img)
	luma, w, h := grayscale(small)
	edges := edgeMap(luma, w, h)

	bh := int(float64(h) * bandFraction)
	if bh < 1 {
		bh = 1
	}

	top := regionEdgeDensity(edges, w, h, 0, 0, w, bh)
	bottom := regionEdgeDensity(edges, w, h, 0, h-bh, w, h)
	middle := regionEdgeDensity(edges, w, h, 0, bh, w, h-bh)

	band := top
	if bottom > band {
		band = bottom
	}
	if band < 0.05 {
		return 0
	}

	ratio := band / (middle + 0.01)
	return clamp((ratio-1.5)/6, 0, 0.7)
}

// metadataRightsConfidence inspects embedded rights fields. A stock-agency
// fingerprint is a strong signal; any other populated rights field is a weak
// one.
func metadataRightsConfidence(meta *Metadata) float64 {
	if meta == nil {
		return 0
	}
	fields := meta.RightsFields()
	if len(fields) == 0 {
		return 0
	}
	for _, f := range fields {
		lower := strings.ToLower(f)
		for _, kw := range stockKeywords {
			if strings.Contains(lower, kw) {
				return 0.6
			}
		}
	}
	return 0.2
}
