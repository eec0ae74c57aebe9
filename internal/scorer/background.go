package scorer

import (
	"fmt"

	"github.com/prodfinder/imagepick/internal/pick"
)

// borderFraction is the width of the frame band, as a fraction of each
// dimension, examined for background complexity.
const borderFraction = 0.15

// maxBorderDensity is the edge density at which the background subscore
// bottoms out at zero.
const maxBorderDensity = 0.25

// backgroundCheck estimates background uniformity from the edge density of
// the image border band. Busy backgrounds are heavily penalized but never
// disqualified on their own.
type backgroundCheck struct{}

func (backgroundCheck) Name() string { return CheckBackground }

func (backgroundCheck) Evaluate(in *Input) pick.CheckResult {
	result := pick.CheckResult{Check: CheckBackground}
	if in.Img == nil {
		result.Passed = true
		result.Subscore = 50
		result.Detail = "no decoded image"
		return result
	}

	small := downscale(in.Img)
	luma, w, h := grayscale(small)
	edges := edgeMap(luma, w, h)

	bw := int(float64(w) * borderFraction)
	bh := int(float64(h) * borderFraction)
	if bw < 1 {
		bw = 1
	}
	if bh < 1 {
		bh = 1
	}

	top := regionEdgeDensity(edges, w, h, 0, 0, w, bh)
	bottom := regionEdgeDensity(edges, w, h, 0, h-bh, w, h)
	left := regionEdgeDensity(edges, w, h, 0, 0, bw, h)
	right := regionEdgeDensity(edges, w, h, w-bw, 0, w, h)
	density := (top + bottom + left + right) / 4

	result.Passed = true
	result.Subscore = clamp(100*(1-density/maxBorderDensity), 0, 100)
	result.Detail = fmt.Sprintf("border edge density %s", pct(density))
	return result
}
