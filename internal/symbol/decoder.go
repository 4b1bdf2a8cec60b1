// Package symbol decodes machine-readable codes (linear barcodes and QR
// codes) from in-memory images using gozxing.
package symbol

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Decoder tries a fixed list of symbology readers against an image.
//
// A Decoder is safe for concurrent use: readers are created per call.
type Decoder struct {
	readers []func() gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// New returns a Decoder for Code 128, Code 39, EAN-13, ITF and QR, tried in
// that order.
func New() *Decoder {
	return &Decoder{
		readers: []func() gozxing.Reader{
			oned.NewCode128Reader,
			oned.NewCode39Reader,
			oned.NewEAN13Reader,
			oned.NewITFReader,
			qrcode.NewQRCodeReader,
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Formats returns the symbologies this decoder reads, in reader order.
func (d *Decoder) Formats() []string {
	return []string{
		gozxing.BarcodeFormat_CODE_128.String(),
		gozxing.BarcodeFormat_CODE_39.String(),
		gozxing.BarcodeFormat_EAN_13.String(),
		gozxing.BarcodeFormat_ITF.String(),
		gozxing.BarcodeFormat_QR_CODE.String(),
	}
}

// Decode returns every distinct symbol found in img, in reader order. It
// returns an empty slice when nothing decodes and an error only when img
// cannot be binarized.
func (d *Decoder) Decode(img image.Image) ([]pipeline.Symbol, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitmap: %w", err)
	}

	symbols := make([]pipeline.Symbol, 0, 1)
	seen := make(map[string]bool)
	for _, newReader := range d.readers {
		// NotFound, Checksum and Format errors all mean this reader saw
		// nothing usable.
		result, err := newReader().Decode(bmp, d.hints)
		if err != nil || result == nil {
			continue
		}
		text := result.GetText()
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		symbols = append(symbols, pipeline.Symbol{
			Payload:   text,
			Symbology: result.GetBarcodeFormat().String(),
		})
	}
	return symbols, nil
}
