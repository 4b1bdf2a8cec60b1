package ocr

import (
	"image"
	"image/color"
	"testing"
)

func TestToFragments(t *testing.T) {
	words := []word{
		{Text: "M009", Box: image.Rect(10, 5, 40, 20), Confidence: 91},
		{Text: "  ", Box: image.Rect(40, 5, 45, 20), Confidence: 10},
		{Text: "68429135 ", Box: image.Rect(50, 5, 120, 20), Confidence: 87.5},
	}

	frags := toFragments(words, "ignored", 1)
	if len(frags) != 2 {
		t.Fatalf("fragments: got %d, want 2", len(frags))
	}
	if frags[0].Text != "M009" || frags[1].Text != "68429135" {
		t.Errorf("texts: got %q, %q", frags[0].Text, frags[1].Text)
	}
	if frags[0].Confidence != 0.91 {
		t.Errorf("confidence: got %v, want 0.91", frags[0].Confidence)
	}
	if frags[1].Bounds != image.Rect(50, 5, 120, 20) {
		t.Errorf("bounds: got %v", frags[1].Bounds)
	}
}

func TestToFragments_FallbackToText(t *testing.T) {
	frags := toFragments(nil, "  ABC 123\nXYZ  ", 1)
	want := []string{"ABC", "123", "XYZ"}
	if len(frags) != len(want) {
		t.Fatalf("fragments: got %d, want %d", len(frags), len(want))
	}
	for i, f := range frags {
		if f.Text != want[i] {
			t.Errorf("fragment %d: got %q, want %q", i, f.Text, want[i])
		}
		if f.Bounds != (image.Rectangle{}) {
			t.Errorf("fragment %d: fallback fragments have no bounds, got %v", i, f.Bounds)
		}
	}

	if got := toFragments(nil, "   ", 1); len(got) != 0 {
		t.Errorf("blank text: got %d fragments", len(got))
	}
}

func TestToFragments_Scale(t *testing.T) {
	frags := toFragments([]word{{Text: "A", Box: image.Rect(20, 40, 60, 80)}}, "", 2)
	if frags[0].Bounds != image.Rect(10, 20, 30, 40) {
		t.Errorf("scaled bounds: got %v", frags[0].Bounds)
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
		wantScale    float64
	}{
		{"tall enough", 200, 60, 200, 60, 1},
		{"short crop upscaled", 100, 24, 200, 48, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			img.Set(0, 0, color.RGBA{255, 0, 0, 255})

			got, scale := prepare(img)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("size: got %v, want %dx%d", got.Bounds().Size(), tt.wantW, tt.wantH)
			}
			if scale != tt.wantScale {
				t.Errorf("scale: got %v, want %v", scale, tt.wantScale)
			}

			// Grayscale output: channels equal
			r, g, b, _ := got.At(0, 0).RGBA()
			if r != g || g != b {
				t.Errorf("expected grayscale pixel, got (%d,%d,%d)", r, g, b)
			}
		})
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := encodePNG(image.NewGray(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("encodePNG failed: %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Errorf("not a PNG stream: % x", data[:8])
	}
}

func TestOptions_DefaultLanguage(t *testing.T) {
	if got := (Options{}).languages(); len(got) != 1 || got[0] != DefaultLanguage {
		t.Errorf("languages: got %v", got)
	}
	if got := (Options{Languages: []string{"deu", "eng"}}).languages(); len(got) != 2 {
		t.Errorf("languages: got %v", got)
	}
}

func TestDescribe_StartFailure(t *testing.T) {
	info := Describe(nil, Options{TessdataPrefix: "/opt/tessdata"}, ErrUnavailable)
	if info.Available || info.Version != "" {
		t.Errorf("failed start reported as usable: %+v", info)
	}
	if info.Backend != backend {
		t.Errorf("Backend: got %q, want %q", info.Backend, backend)
	}
	if info.Error != ErrUnavailable.Error() {
		t.Errorf("Error: got %q", info.Error)
	}
	if len(info.Languages) != 1 || info.Languages[0] != DefaultLanguage || info.TessdataPrefix != "/opt/tessdata" {
		t.Errorf("options not reported: %+v", info)
	}
}
