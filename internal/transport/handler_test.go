package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
	"github.com/ironsheep/barcode-tools-mcp/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDetector struct {
	res   pipeline.Result
	delay time.Duration
	calls int32
	sizes chan image.Point
}

func (d *stubDetector) Run(img image.Image) pipeline.Result {
	atomic.AddInt32(&d.calls, 1)
	if d.sizes != nil {
		d.sizes <- img.Bounds().Size()
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.res
}

type stubFetcher struct {
	img image.Image
	err error
	got string
}

func (f *stubFetcher) Fetch(_ context.Context, ref string) (image.Image, error) {
	f.got = ref
	return f.img, f.err
}

var successResult = pipeline.Result{
	Succeeded:  true,
	Payload:    "M00968429135",
	StrategyID: pipeline.IDDirect,
	Attempts:   1,
	Message:    "detected via direct: CODE_128",
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func defaultOptions() Options {
	return Options{
		Version:            "test",
		MaxRequestBodySize: 1 << 20,
		RequestTimeout:     5 * time.Second,
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) pipeline.Result {
	t.Helper()
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v (body %s)", err, rec.Body.String())
	}
	return res
}

func TestHealth(t *testing.T) {
	opts := defaultOptions()
	opts.OCRAvailable = true
	h := NewHandler(&stubDetector{}, nil, opts)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "available" || body["version"] != "test" || body["ocr"] != true {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestDetectUpload(t *testing.T) {
	det := &stubDetector{res: successResult}
	h := NewHandler(det, nil, defaultOptions())

	body, ctype := multipartBody(t, "image", "label.png", pngBytes(t, testImage(40, 20)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", ctype)

	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decodeResult(t, rec)
	if !res.Succeeded || res.Payload != "M00968429135" || res.StrategyID != pipeline.IDDirect {
		t.Errorf("unexpected result %+v", res)
	}
	if det.calls != 1 {
		t.Errorf("detector calls = %d, want 1", det.calls)
	}
}

func TestDetectUploadDownscales(t *testing.T) {
	det := &stubDetector{res: successResult, sizes: make(chan image.Point, 1)}
	opts := defaultOptions()
	opts.MaxWidth, opts.MaxHeight = 100, 100
	h := NewHandler(det, nil, opts)

	body, ctype := multipartBody(t, "image", "big.png", pngBytes(t, testImage(400, 200)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", ctype)

	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := <-det.sizes; got != (image.Point{X: 100, Y: 50}) {
		t.Errorf("detector saw %v, want 100x50", got)
	}
}

func TestDetectUploadUndecodable(t *testing.T) {
	det := &stubDetector{res: successResult}
	h := NewHandler(det, nil, defaultOptions())

	body, ctype := multipartBody(t, "image", "junk.png", []byte("definitely not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", ctype)

	rec := serve(h, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	res := decodeResult(t, rec)
	if res.Succeeded || !strings.HasPrefix(res.Message, "failed to load image: ") {
		t.Errorf("unexpected result %+v", res)
	}
	if det.calls != 0 {
		t.Error("detector must not run on load failure")
	}
}

func TestDetectUploadMissingField(t *testing.T) {
	h := NewHandler(&stubDetector{}, nil, defaultOptions())

	body, ctype := multipartBody(t, "file", "label.png", pngBytes(t, testImage(4, 4)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", ctype)

	if rec := serve(h, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDetectByURL(t *testing.T) {
	det := &stubDetector{res: pipeline.Result{Attempts: 21, Message: "failed to detect; last error: no text found"}}
	f := &stubFetcher{img: testImage(10, 10)}
	h := NewHandler(det, f, defaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect",
		strings.NewReader(`{"url": "https://example.com/label.png"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.got != "https://example.com/label.png" {
		t.Errorf("fetcher got %q", f.got)
	}
	res := decodeResult(t, rec)
	if res.Succeeded || res.Message != "failed to detect; last error: no text found" || res.Attempts != 21 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDetectByURLErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fetcher  storage.Fetcher
		wantCode int
	}{
		{"missing url", `{}`, &stubFetcher{}, http.StatusBadRequest},
		{"malformed json", `{"url":`, &stubFetcher{}, http.StatusBadRequest},
		{"relative url", `{"url": "label.png"}`, &stubFetcher{}, http.StatusBadRequest},
		{"no host", `{"url": "https:///label.png"}`, &stubFetcher{}, http.StatusBadRequest},
		{"no fetcher", `{"url": "https://example.com/a.png"}`, nil, http.StatusNotImplemented},
		{"unsupported scheme", `{"url": "ftp://example.com/a.png"}`,
			&stubFetcher{err: storage.ErrUnsupportedScheme}, http.StatusBadRequest},
		{"fetch failure", `{"url": "https://example.com/a.png"}`,
			&stubFetcher{err: errors.New("client error: status code 404")}, http.StatusUnprocessableEntity},
		{"fetch timeout", `{"url": "https://example.com/a.png"}`,
			&stubFetcher{err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"undecodable", `{"url": "https://example.com/a.png"}`,
			&stubFetcher{err: imaging.ErrUnsupportedFormat}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &stubDetector{res: successResult}
			h := NewHandler(det, tt.fetcher, defaultOptions())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(h, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if det.calls != 0 {
				t.Error("detector must not run")
			}
		})
	}
}

func TestDetectLoadFailureBody(t *testing.T) {
	f := &stubFetcher{err: errors.New("server error: status code 503")}
	h := NewHandler(&stubDetector{}, f, defaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect",
		strings.NewReader(`{"url": "https://example.com/a.png"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(h, req)
	res := decodeResult(t, rec)
	if res.Message != "failed to load image: server error: status code 503" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestDetectBodyTooLarge(t *testing.T) {
	opts := defaultOptions()
	opts.MaxRequestBodySize = 16
	h := NewHandler(&stubDetector{}, &stubFetcher{}, opts)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect",
		strings.NewReader(`{"url": "https://example.com/a-very-long-path/label.png"}`))
	req.Header.Set("Content-Type", "application/json")

	if rec := serve(h, req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestDetectTimeout(t *testing.T) {
	det := &stubDetector{res: successResult, delay: 500 * time.Millisecond}
	opts := defaultOptions()
	opts.RequestTimeout = 20 * time.Millisecond
	h := NewHandler(det, &stubFetcher{img: testImage(4, 4)}, opts)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect",
		strings.NewReader(`{"url": "https://example.com/a.png"}`))
	req.Header.Set("Content-Type", "application/json")

	if rec := serve(h, req); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}
