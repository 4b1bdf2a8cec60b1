package pipeline

import (
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

// Strategy identifiers, also used in Result.StrategyID.
const (
	IDDirect = "direct"
	IDRegion = "region"
	IDFull   = "full"
)

// Strategy is one self-contained detection technique.
type Strategy interface {
	ID() string
	Attempt(img image.Image) Outcome
}

// DirectDecode runs a symbology decoder on the whole image.
type DirectDecode struct {
	Decoder SymbolDecoder
}

// ID implements Strategy.
func (DirectDecode) ID() string { return IDDirect }

// Attempt succeeds with the first decoded symbol's payload.
func (d DirectDecode) Attempt(img image.Image) Outcome {
	if d.Decoder == nil {
		return Failure("symbol decoder unavailable")
	}
	symbols, err := d.Decoder.Decode(img)
	if err != nil {
		return Failure("decode error: " + err.Error())
	}
	for _, s := range symbols {
		if strings.TrimSpace(s.Payload) != "" {
			return Success(s.Payload, IDDirect, s.Symbology)
		}
	}
	return Failure("no symbol found")
}

// RegionGuided crops the image to the located region of interest and runs
// text recognition on the crop.
type RegionGuided struct {
	Locator    RegionLocator
	Recognizer TextRecognizer
}

// ID implements Strategy.
func (RegionGuided) ID() string { return IDRegion }

// Attempt locates the dominant region, recognizes text inside it and
// succeeds with the concatenated fragments.
func (r RegionGuided) Attempt(img image.Image) Outcome {
	if r.Recognizer == nil {
		return Failure("text recognizer unavailable")
	}
	if r.Locator == nil {
		return Failure("no region located")
	}
	box, ok := r.Locator.Locate(img)
	if !ok || box.Empty() {
		return Failure("no region located")
	}
	crop, err := imaging.CropRect(img, box.Rect())
	if err != nil {
		return Failure("no region located")
	}

	frags, err := r.Recognizer.Recognize(crop)
	if err != nil {
		return Failure("recognition error: " + err.Error())
	}
	text := JoinFragments(frags)
	if text == "" {
		return Failure("no text in region")
	}
	return Success(text, IDRegion, fmt.Sprintf("region %dx%d at (%d,%d)", box.Width, box.Height, box.X, box.Y))
}

// FullImage runs text recognition on the whole image.
type FullImage struct {
	Recognizer TextRecognizer
}

// ID implements Strategy.
func (FullImage) ID() string { return IDFull }

// Attempt recognizes text across the whole image and succeeds with the
// concatenated fragments.
func (f FullImage) Attempt(img image.Image) Outcome {
	if f.Recognizer == nil {
		return Failure("text recognizer unavailable")
	}
	frags, err := f.Recognizer.Recognize(img)
	if err != nil {
		return Failure("recognition error: " + err.Error())
	}
	text := JoinFragments(frags)
	if text == "" {
		return Failure("no text found")
	}
	return Success(text, IDFull, "")
}

// DefaultStrategies returns the standard priority order: direct decode,
// region-guided recognition, full-image recognition.
func DefaultStrategies(dec SymbolDecoder, rec TextRecognizer, loc RegionLocator) []Strategy {
	return []Strategy{
		DirectDecode{Decoder: dec},
		RegionGuided{Locator: loc, Recognizer: rec},
		FullImage{Recognizer: rec},
	}
}

// StrategiesByID builds strategies in the order given by ids. An empty ids
// list yields DefaultStrategies.
func StrategiesByID(ids []string, dec SymbolDecoder, rec TextRecognizer, loc RegionLocator) ([]Strategy, error) {
	if len(ids) == 0 {
		return DefaultStrategies(dec, rec, loc), nil
	}
	out := make([]Strategy, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if seen[id] {
			return nil, fmt.Errorf("duplicate strategy %q", id)
		}
		seen[id] = true
		switch id {
		case IDDirect:
			out = append(out, DirectDecode{Decoder: dec})
		case IDRegion:
			out = append(out, RegionGuided{Locator: loc, Recognizer: rec})
		case IDFull:
			out = append(out, FullImage{Recognizer: rec})
		default:
			return nil, fmt.Errorf("unknown strategy %q", id)
		}
	}
	return out, nil
}

// attempt rotates the source by angle and invokes s on the result. A panic
// in either step becomes a failure outcome.
func attempt(s Strategy, rc *rotationCache, angle float64) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Sprintf("strategy panic: %v", r))
		}
	}()
	return s.Attempt(rc.rotated(angle))
}
