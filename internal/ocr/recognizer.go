package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

// ErrUnavailable is returned when the binary was built without Tesseract
// support.
var ErrUnavailable = errors.New("tesseract OCR is not available in this build")

// DefaultLanguage is used when Options.Languages is empty.
const DefaultLanguage = "eng"

// minTextHeight is the smallest image height handed to Tesseract. Shorter
// crops are upscaled; Tesseract needs glyphs of roughly 20px or more.
const minTextHeight = 48

// Options configures a Tesseract recognizer.
type Options struct {
	// Languages are Tesseract language codes, e.g. "eng".
	Languages []string
	// TessdataPrefix points at the tessdata directory. Empty uses the
	// system default (or TESSDATA_PREFIX).
	TessdataPrefix string
}

func (o Options) languages() []string {
	if len(o.Languages) == 0 {
		return []string{DefaultLanguage}
	}
	return o.Languages
}

// Info describes the OCR subsystem.
type Info struct {
	Available      bool     `json:"available"`
	Version        string   `json:"version,omitempty"`
	Backend        string   `json:"backend"`
	Languages      []string `json:"languages,omitempty"`
	TessdataPrefix string   `json:"tessdata_prefix,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Describe reports the state of a recognizer started with opts. A nil t
// reports startErr as the reason OCR is unusable.
func Describe(t *Tesseract, opts Options, startErr error) Info {
	info := Info{
		Backend:        backend,
		Languages:      opts.languages(),
		TessdataPrefix: opts.TessdataPrefix,
	}
	if t == nil {
		if startErr != nil {
			info.Error = startErr.Error()
		}
		return info
	}
	info.Available = true
	info.Version = t.Version()
	return info
}

// GetInfo starts a short-lived recognizer with opts and reports whether it
// is usable.
func GetInfo(opts Options) Info {
	t, err := New(opts)
	if err != nil {
		return Describe(nil, opts, err)
	}
	defer t.Close()
	return Describe(t, opts, nil)
}

// word is one recognized word as reported by the engine.
type word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64 // 0..100 as reported by Tesseract
}

// toFragments converts engine words to pipeline fragments, dropping blank
// words. With no words it falls back to splitting text on whitespace. scale
// maps boxes back from the prepared image to the caller's image.
func toFragments(words []word, text string, scale float64) []pipeline.TextFragment {
	frags := make([]pipeline.TextFragment, 0, len(words))
	for _, w := range words {
		t := strings.TrimSpace(w.Text)
		if t == "" {
			continue
		}
		frags = append(frags, pipeline.TextFragment{
			Text:       t,
			Bounds:     scaleRect(w.Box, scale),
			Confidence: w.Confidence / 100.0,
		})
	}
	if len(frags) > 0 {
		return frags
	}
	for _, f := range strings.Fields(text) {
		frags = append(frags, pipeline.TextFragment{Text: f})
	}
	return frags
}

func scaleRect(r image.Rectangle, scale float64) image.Rectangle {
	if scale == 1 || scale <= 0 {
		return r
	}
	return image.Rect(
		int(float64(r.Min.X)/scale),
		int(float64(r.Min.Y)/scale),
		int(float64(r.Max.X)/scale),
		int(float64(r.Max.Y)/scale),
	)
}

// prepare converts img to grayscale and upscales short images so glyphs are
// tall enough to recognize. It returns the prepared image and the scale
// factor applied.
func prepare(img image.Image) (image.Image, float64) {
	gray := imaging.Grayscale(img)
	h := gray.Bounds().Dy()
	if h == 0 || h >= minTextHeight {
		return gray, 1
	}
	scale := float64(minTextHeight) / float64(h)
	w := int(float64(gray.Bounds().Dx())*scale + 0.5)
	return imaging.Resize(gray, w, minTextHeight, imaging.Lanczos), scale
}

// encodePNG serializes img for the engine.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
