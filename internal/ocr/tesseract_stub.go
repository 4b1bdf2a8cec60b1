//go:build !cgo

package ocr

import (
	"image"

	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

const backend = "none"

// Tesseract is unavailable without cgo.
type Tesseract struct{}

// New always fails with ErrUnavailable.
func New(opts Options) (*Tesseract, error) {
	return nil, ErrUnavailable
}

// Recognize always fails with ErrUnavailable.
func (t *Tesseract) Recognize(img image.Image) ([]pipeline.TextFragment, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (t *Tesseract) Close() error { return nil }

// Version is empty without an engine.
func (t *Tesseract) Version() string { return "" }
