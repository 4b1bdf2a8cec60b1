//go:build cgo

package ocr

import (
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

const backend = "gosseract"

// Tesseract is a TextRecognizer backed by one gosseract client.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   Options
}

// New creates a recognizer and initializes the engine with the configured
// languages. The caller must Close it.
func New(opts Options) (*Tesseract, error) {
	client := gosseract.NewClient()
	if opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(opts.languages()...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	return &Tesseract{client: client, opts: opts}, nil
}

// Recognize returns the words Tesseract finds in img, in reading order.
func (t *Tesseract) Recognize(img image.Image) ([]pipeline.TextFragment, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	prepared, scale := prepare(img)
	data, err := encodePNG(prepared)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, fmt.Errorf("recognizer is closed")
	}
	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	// Return just text if boxes fail
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return toFragments(nil, text, scale), nil
	}
	words := make([]word, 0, len(boxes))
	for _, box := range boxes {
		words = append(words, word{Text: box.Word, Box: box.Box, Confidence: box.Confidence})
	}
	return toFragments(words, text, scale), nil
}

// Close releases the engine. Recognize fails after Close.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// Version returns the linked Tesseract version.
func (t *Tesseract) Version() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return ""
	}
	return t.client.Version()
}
