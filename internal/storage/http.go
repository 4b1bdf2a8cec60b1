package storage

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

// DefaultMaxImageBytes caps downloaded image size.
const DefaultMaxImageBytes = 50 << 20

// HTTPFetcher downloads images over HTTP(S) with retries.
//
// Transport errors and 5xx responses are retried up to Attempts times with a
// linearly growing pause. 4xx responses fail immediately.
type HTTPFetcher struct {
	client   *http.Client
	Attempts int
	Backoff  time.Duration
	MaxBytes int64
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		Attempts: 3,
		Backoff:  time.Second,
		MaxBytes: DefaultMaxImageBytes,
	}
}

// Fetch downloads and decodes the image at imageURL.
func (h *HTTPFetcher) Fetch(ctx context.Context, imageURL string) (image.Image, error) {
	attempts := h.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch image: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * h.Backoff):
			}
		}

		img, retry, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", attempts, lastErr)
}

// fetchOnce performs a single request. retry reports whether the failure is
// transient.
func (h *HTTPFetcher) fetchOnce(ctx context.Context, imageURL string) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, image/tiff, image/bmp, */*")
	req.Header.Set("User-Agent", "barcode-mcp/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, false, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}

	img, err := imaging.DecodeBytes(data)
	if err != nil {
		return nil, false, err
	}
	return img, false, nil
}
