package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// ColorResult contains a sampled pixel in several representations.
//
// Lightness is the perceptual CIE L* value (0-100). Labels are dark-on-light,
// so a bar pixel typically reads below 40 and paper above 80; the value is
// useful for judging whether a capture is too washed out to decode.
type ColorResult struct {
	Hex       string   `json:"hex"`   // Hex format "#RRGGBB" (no alpha)
	RGB       RGBColor `json:"rgb"`   // RGB components
	Alpha     uint8    `json:"alpha"` // Alpha (0 = transparent)
	HSL       HSLColor `json:"hsl"`   // HSL representation
	Lightness float64  `json:"lightness"`
}

// SampleColor extracts the color value at a specific pixel coordinate.
//
// Returns an error if (x, y) is outside the image bounds.
func SampleColor(img image.Image, x, y int) (*ColorResult, error) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	px := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	c := colorful.Color{
		R: float64(px.R) / 255,
		G: float64(px.G) / 255,
		B: float64(px.B) / 255,
	}
	h, s, l := c.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	lStar, _, _ := c.Lab()

	return &ColorResult{
		Hex:   strings.ToUpper(c.Hex()),
		RGB:   RGBColor{R: px.R, G: px.G, B: px.B},
		Alpha: px.A,
		HSL: HSLColor{
			H: int(math.Round(h)) % 360,
			S: int(math.Round(s * 100)),
			L: int(math.Round(l * 100)),
		},
		Lightness: math.Round(lStar*1000) / 10,
	}, nil
}
