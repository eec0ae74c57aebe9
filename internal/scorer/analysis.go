package scorer

import (
	"image"

	"golang.org/x/image/draw"
)

// analysisMaxSide bounds the working resolution for pixel analysis. Scaling
// uses a fixed kernel so results stay identical across runs.
const analysisMaxSide = 128

// edgeThreshold is the gradient magnitude (0..255 scale) above which a pixel
// counts as an edge.
const edgeThreshold = 32

// downscale returns img scaled to at most analysisMaxSide on its longest side.
func downscale(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	if w > h {
		if w > analysisMaxSide {
			h = h * analysisMaxSide / w
			w = analysisMaxSide
		}
	} else {
		if h > analysisMaxSide {
			w = w * analysisMaxSide / h
			h = analysisMaxSide
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// grayscale converts an RGBA image to a luma plane (0..255 per pixel).
func grayscale(img *image.RGBA) ([]uint8, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			r := int(img.Pix[i])
			g := int(img.Pix[i+1])
			b := int(img.Pix[i+2])
			// Integer Rec. 601 luma.
			out[y*w+x] = uint8((299*r + 587*g + 114*b) / 1000)
		}
	}
	return out, w, h
}

// edgeMap marks pixels whose horizontal+vertical gradient exceeds the edge
// threshold.
func edgeMap(luma []uint8, w, h int) []bool {
	edges := make([]bool, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			dx := int(luma[y*w+x+1]) - int(luma[y*w+x-1])
			if dx < 0 {
				dx = -dx
			}
			dy := int(luma[(y+1)*w+x]) - int(luma[(y-1)*w+x])
			if dy < 0 {
				dy = -dy
			}
			if dx+dy > edgeThreshold {
				edges[y*w+x] = true
			}
		}
	}
	return edges
}

// regionEdgeDensity returns the fraction of edge pixels inside the rectangle
// [x0,x1) x [y0,y1), clipped to the image.
func regionEdgeDensity(edges []bool, w, h, x0, y0, x1, y1 int) float64 {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	total := 0
	hits := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			total++
			if edges[y*w+x] {
				hits++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
