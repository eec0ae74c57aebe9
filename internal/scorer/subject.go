package scorer

import (
	"fmt"
	"image"

	"github.com/prodfinder/imagepick/internal/pick"
)

// maxSkinRatio is the fraction of skin-tone pixels above which the image is
// assumed to contain a human figure.
const maxSkinRatio = 0.10

// subjectCheck rejects images that appear to contain a person. Product shots
// should show the product alone. Configuration-gated.
type subjectCheck struct{}

func (subjectCheck) Name() string { return CheckSubject }

func (subjectCheck) Evaluate(in *Input) pick.CheckResult {
	result := pick.CheckResult{Check: CheckSubject, Disqualifies: true}
	if in.Img == nil {
		result.Passed = true
		result.Subscore = 50
		result.Detail = "no decoded image"
		return result
	}

	small := downscale(in.Img)
	ratio := skinRatio(small)
	result.Detail = fmt.Sprintf("skin-tone ratio %s", pct(ratio))
	if ratio > maxSkinRatio {
		return result
	}

	result.Passed = true
	result.Subscore = clamp(100*(1-ratio/maxSkinRatio), 0, 100)
	return result
}

// skinRatio counts pixels matching a classic RGB skin-tone rule.
func skinRatio(img *image.RGBA) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	hits := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			r := int(img.Pix[i])
			g := int(img.Pix[i+1])
			b := int(img.Pix[i+2])
			maxC := r
			if g > maxC {
				maxC = g
			}
			if b > maxC {
				maxC = b
			}
			minC := r
			if g < minC {
				minC = g
			}
			if b < minC {
				minC = b
			}
			if r > 95 && g > 40 && b > 20 && maxC-minC > 15 && r-g > 15 && r > b {
				hits++
			}
		}
	}
	return float64(hits) / float64(w*h)
}
