package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// DefaultKernelSize is the side length of the square structuring element used
// for the morphological gradient and closing when none is configured.
const DefaultKernelSize = 5

// GradientMask builds the binary foreground mask used to locate a symbol
// region.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - kernelSize: Side length of the structuring element. Values below 3 fall
//     back to DefaultKernelSize.
//
// Returns a grayscale image anchored at (0,0) in which foreground pixels are
// 255 and background pixels are 0.
//
// # Algorithm
//
//  1. Grayscale conversion
//  2. Morphological gradient: dilate(gray) - erode(gray). Dense stroke
//     patterns such as bars and glyphs light up, flat paper stays dark.
//  3. Otsu binarization: the threshold maximizing between-class variance of
//     the gradient histogram; pixels strictly above it become foreground.
//  4. Morphological closing: dilate then erode, merging adjacent strokes into
//     one blob per symbol.
//
// A uniform image produces an all-zero gradient and therefore an empty mask.
func GradientMask(img image.Image, kernelSize int) *image.Gray {
	if kernelSize < 3 {
		kernelSize = DefaultKernelSize
	}
	radius := float64(kernelSize / 2)

	gray := effect.Grayscale(imaging.Clone(img))
	dilated := effect.Dilate(gray, radius)
	eroded := effect.Erode(gray, radius)

	b := gray.Bounds()
	grad := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			hi := dilated.RGBAAt(x, y).R
			lo := eroded.RGBAAt(x, y).R
			if hi > lo {
				grad.Pix[y*grad.Stride+x] = hi - lo
			}
		}
	}

	// Threshold keeps values >= level, so the level is one above Otsu's split.
	level := int(OtsuThreshold(grad)) + 1
	if level > 255 {
		level = 255
	}
	binary := segment.Threshold(grad, uint8(level))

	closed := effect.Erode(effect.Dilate(binary, radius), radius)
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if closed.RGBAAt(x, y).R >= 128 {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}

// OtsuThreshold returns the gray level that maximizes the between-class
// variance of img's histogram. Pixels at or below the level form the
// background class. A single-valued histogram returns that value's level
// with no foreground above it.
func OtsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB    float64
		weightB int
		best    float64
		level   int
	)
	maxLevel := 0
	for i, n := range hist {
		if n > 0 {
			maxLevel = i
		}
	}
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			level = t
		}
	}
	if best == 0 {
		return uint8(maxLevel)
	}
	return uint8(level)
}
