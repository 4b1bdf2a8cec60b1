package pipeline

import (
	"image"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

var standardAngles = []float64{0, -15, 15, -30, 30, -45, 45}

// StandardAngles returns the default rotation sequence: 0 first, then
// symmetric offsets of increasing size.
func StandardAngles() []float64 {
	return append([]float64(nil), standardAngles...)
}

// RetryRotations replays s on img rotated by each angle in order and returns
// the first success, annotated with its angle. When every angle fails the
// failure from the last angle is returned. An empty angle list means [0].
func RetryRotations(s Strategy, img image.Image, angles []float64) Outcome {
	out, _ := retryRotations(s, newRotationCache(img), angles, nil)
	return out
}

// retryRotations is RetryRotations over a shared rotation cache. It reports
// each attempt to observe and returns the number of attempts made.
func retryRotations(s Strategy, rc *rotationCache, angles []float64, observe func(angle float64, o Outcome)) (Outcome, int) {
	if len(angles) == 0 {
		angles = []float64{0}
	}
	var last Outcome
	for i, angle := range angles {
		o := attempt(s, rc, angle)
		if observe != nil {
			observe(angle, o)
		}
		if o.Succeeded() {
			return o.atAngle(angle), i + 1
		}
		last = o
	}
	return last, len(angles)
}

// rotationCache memoizes rotated copies of one image for the duration of a
// run, so later strategies do not resample the same angle again.
type rotationCache struct {
	src     image.Image
	byAngle map[float64]image.Image
}

func newRotationCache(img image.Image) *rotationCache {
	return &rotationCache{src: img, byAngle: make(map[float64]image.Image)}
}

// rotated returns src rotated by angle. Angle 0 is src itself.
func (rc *rotationCache) rotated(angle float64) image.Image {
	if angle == 0 {
		return rc.src
	}
	if img, ok := rc.byAngle[angle]; ok {
		return img
	}
	img := imaging.Rotate(rc.src, angle)
	rc.byAngle[angle] = img
	return img
}
