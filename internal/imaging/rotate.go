package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// RotatedSize returns the canvas dimensions needed to hold a w x h image
// rotated by angleDegrees without clipping:
//
//	newWidth  = h*|sin θ| + w*|cos θ|
//	newHeight = h*|cos θ| + w*|sin θ|
//
// Results are rounded up, with a small epsilon so exact multiples of 90°
// do not gain a spurious pixel from floating point noise.
func RotatedSize(w, h int, angleDegrees float64) (int, int) {
	rad := angleDegrees * math.Pi / 180
	sin := math.Abs(math.Sin(rad))
	cos := math.Abs(math.Cos(rad))
	const eps = 1e-9
	nw := int(math.Ceil(float64(h)*sin + float64(w)*cos - eps))
	nh := int(math.Ceil(float64(h)*cos + float64(w)*sin - eps))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Rotate returns a copy of img rotated by angleDegrees about its center.
// Positive angles rotate counter-clockwise as seen on screen.
//
// The canvas is expanded to RotatedSize so no content is clipped, and the
// original center lands on the new canvas center. Pixels are resampled
// bilinearly. Canvas areas outside the source replicate the nearest border
// pixel instead of being padded with a constant color, so the padding never
// introduces hard edges a decoder could mistake for bars.
//
// An angle of 0 returns img itself, with no copy and no resampling.
func Rotate(img image.Image, angleDegrees float64) image.Image {
	if angleDegrees == 0 {
		return img
	}

	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return src
	}
	nw, nh := RotatedSize(w, h, angleDegrees)
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))

	rad := angleDegrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	// Pixel centers sit on integer coordinates.
	scx, scy := float64(w-1)/2, float64(h-1)/2
	dcx, dcy := float64(nw-1)/2, float64(nh-1)/2

	for y := 0; y < nh; y++ {
		dy := float64(y) - dcy
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < nw; x++ {
			dx := float64(x) - dcx
			// Inverse of the forward map (dx', dy') = (c*dx + s*dy, -s*dx + c*dy).
			sx := cos*dx - sin*dy + scx
			sy := sin*dx + cos*dy + scy
			sampleBilinear(src, sx, sy, row[x*4:x*4+4])
		}
	}
	return dst
}

// sampleBilinear writes the bilinearly interpolated NRGBA value of src at
// (fx, fy) into out. Coordinates outside the image are clamped to the
// nearest edge pixel.
func sampleBilinear(src *image.NRGBA, fx, fy float64, out []uint8) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	fx = clampFloat(fx, 0, float64(w-1))
	fy = clampFloat(fy, 0, float64(h-1))

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	x1 := clamp(x0+1, 0, w-1)
	y1 := clamp(y0+1, 0, h-1)
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	p00 := src.Pix[y0*src.Stride+x0*4:]
	p10 := src.Pix[y0*src.Stride+x1*4:]
	p01 := src.Pix[y1*src.Stride+x0*4:]
	p11 := src.Pix[y1*src.Stride+x1*4:]

	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-tx) + float64(p10[c])*tx
		bottom := float64(p01[c])*(1-tx) + float64(p11[c])*tx
		v := top*(1-ty) + bottom*ty
		out[c] = uint8(clampFloat(math.Round(v), 0, 255))
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
