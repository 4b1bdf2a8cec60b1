package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func fastFetcher() *HTTPFetcher {
	f := NewHTTPFetcher(5 * time.Second)
	f.Backoff = time.Millisecond
	return f
}

func TestHTTPFetcher_Success(t *testing.T) {
	data := pngBytes(t, 12, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	img, err := fastFetcher().Fetch(context.Background(), srv.URL+"/label.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 8 {
		t.Errorf("dimensions: got %v", img.Bounds())
	}
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	data := pngBytes(t, 4, 4)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	if _, err := fastFetcher().Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls: got %d, want 3", got)
	}
}

func TestHTTPFetcher_GivesUpAfterAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls: got %d, want 3", got)
	}
}

func TestHTTPFetcher_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls: got %d, want 1", got)
	}
}

func TestHTTPFetcher_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	if !errors.Is(err, imaging.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestHTTPFetcher_TooLarge(t *testing.T) {
	data := pngBytes(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	f := fastFetcher()
	f.MaxBytes = 16
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected size limit error")
	}
}

func TestHTTPFetcher_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := fastFetcher()
	f.Backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := f.Fetch(ctx, srv.URL); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Fetch did not stop waiting on cancellation")
	}
}

func TestParseBlobRef(t *testing.T) {
	tests := []struct {
		ref       string
		container string
		blob      string
		wantErr   bool
	}{
		{"azblob://labels/2024/scan-01.png", "labels", "2024/scan-01.png", false},
		{"AZBLOB://labels/a.jpg", "labels", "a.jpg", false},
		{"azblob://labels", "", "", true},
		{"azblob:///a.png", "", "", true},
		{"https://example.com/a.png", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			c, b, err := ParseBlobRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if c != tt.container || b != tt.blob {
				t.Errorf("got (%q, %q), want (%q, %q)", c, b, tt.container, tt.blob)
			}
		})
	}
}

func TestNewAzureFetcher_InvalidKey(t *testing.T) {
	if _, err := NewAzureFetcher("account", "%%% not base64 %%%"); err == nil {
		t.Error("expected credential error")
	}
}

func TestNewAzureFetcher_ValidKey(t *testing.T) {
	f, err := NewAzureFetcher("account", "a2V5LWJ5dGVz")
	if err != nil {
		t.Fatalf("NewAzureFetcher failed: %v", err)
	}
	if _, err := f.Fetch(context.Background(), "azblob://only-container"); err == nil {
		t.Error("malformed reference should fail before any network call")
	}
}

// fixedFetcher returns a canned image and records the reference.
type fixedFetcher struct {
	got string
}

func (f *fixedFetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	f.got = ref
	return image.NewGray(image.Rect(0, 0, 3, 3)), nil
}

func TestRouter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.png")
	if err := os.WriteFile(path, pngBytes(t, 5, 5), 0o644); err != nil {
		t.Fatal(err)
	}

	httpF := &fixedFetcher{}
	azureF := &fixedFetcher{}
	r := &Router{HTTP: httpF, Azure: azureF, Files: imaging.NewImageCache()}
	ctx := context.Background()

	if _, err := r.Fetch(ctx, "https://example.com/x.png"); err != nil || httpF.got != "https://example.com/x.png" {
		t.Errorf("https: err %v, got %q", err, httpF.got)
	}
	if _, err := r.Fetch(ctx, "azblob://c/b.png"); err != nil || azureF.got != "azblob://c/b.png" {
		t.Errorf("azblob: err %v, got %q", err, azureF.got)
	}
	for _, ref := range []string{path, "file://" + path} {
		img, err := r.Fetch(ctx, ref)
		if err != nil {
			t.Errorf("%s: %v", ref, err)
			continue
		}
		if img.Bounds().Dx() != 5 {
			t.Errorf("%s: dimensions %v", ref, img.Bounds())
		}
	}
	if _, err := r.Fetch(ctx, "ftp://example.com/x.png"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("ftp: expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestRouter_Release(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.png")
	if err := os.WriteFile(path, pngBytes(t, 5, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	cache := imaging.NewImageCache()
	r := &Router{HTTP: &fixedFetcher{}, Files: cache}
	ctx := context.Background()

	for _, ref := range []string{path, "file://" + path} {
		if _, err := r.Fetch(ctx, ref); err != nil {
			t.Fatalf("%s: %v", ref, err)
		}
		if cache.Len() != 1 {
			t.Fatalf("%s: cached %d images, want 1", ref, cache.Len())
		}
		r.Release(ref)
		if cache.Len() != 0 {
			t.Errorf("%s: Release left %d images cached", ref, cache.Len())
		}
	}

	// Remote references and a router without a cache are no-ops.
	r.Release("https://example.com/x.png")
	(&Router{}).Release(path)
}

func TestRouter_MissingFetchers(t *testing.T) {
	r := &Router{}
	for _, ref := range []string{"http://x/y.png", "azblob://c/b", "/tmp/x.png"} {
		if _, err := r.Fetch(context.Background(), ref); !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("%s: expected ErrUnsupportedScheme, got %v", ref, err)
		}
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"/data/scan.png":        false,
		`C:\scans\a.png`:        false,
		"file:///data/scan.png": false,
		"https://example.com/a": true,
		"azblob://labels/a.png": true,
	}
	for ref, want := range tests {
		if got := IsRemote(ref); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", ref, got, want)
		}
	}
}
