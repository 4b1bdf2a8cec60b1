package pipeline

import (
	"image"
	"strings"

	"github.com/ironsheep/barcode-tools-mcp/internal/detection"
)

// Symbol is one decoded machine-readable code.
type Symbol struct {
	Payload   string `json:"payload"`
	Symbology string `json:"symbology"`
}

// SymbolDecoder decodes barcodes from an in-memory image.
//
// Decode returns an empty slice when no symbol is found. It returns an error
// only for malformed image input.
type SymbolDecoder interface {
	Decode(img image.Image) ([]Symbol, error)
}

// TextFragment is one unit of recognized text, usually a word.
type TextFragment struct {
	Text string `json:"text"`
	// Bounds is the fragment position in the recognized image, if known.
	Bounds     image.Rectangle `json:"bounds"`
	Confidence float64         `json:"confidence"`
}

// TextRecognizer runs general purpose text recognition on an image and
// returns fragments in reading order. An image with no text yields an empty
// slice and a nil error.
type TextRecognizer interface {
	Recognize(img image.Image) ([]TextFragment, error)
}

// RegionLocator finds the single most probable region of interest.
type RegionLocator interface {
	Locate(img image.Image) (detection.BoundingBox, bool)
}

// JoinFragments concatenates fragment texts in order with no separator.
// Each fragment is trimmed of surrounding whitespace first.
func JoinFragments(frags []TextFragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(strings.TrimSpace(f.Text))
	}
	return b.String()
}
