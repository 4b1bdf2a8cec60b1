// Package transport exposes the detection pipeline over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
	"github.com/ironsheep/barcode-tools-mcp/internal/storage"
)

// Detector runs detection on one image. It must be safe for concurrent use.
type Detector interface {
	Run(img image.Image) pipeline.Result
}

// Options configures the HTTP handler.
type Options struct {
	Version            string
	MaxRequestBodySize int64
	RequestTimeout     time.Duration
	// MaxWidth and MaxHeight bound uploaded and fetched images; larger ones
	// are downscaled before detection.
	MaxWidth  int
	MaxHeight int
	// OCRAvailable is reported by /health.
	OCRAvailable bool
	Logger       zerolog.Logger
}

// DetectRequest is the JSON body of a detect call by reference.
type DetectRequest struct {
	URL string `json:"url" binding:"required"`
}

// ErrorResponse is returned for requests that never reach the pipeline.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type handler struct {
	det     Detector
	fetcher storage.Fetcher
	opts    Options
}

// NewHandler builds the gin router:
//
//	GET  /health
//	POST /api/v1/detect   multipart "image" file, or JSON {"url": "..."}
//
// fetcher may be nil, in which case only uploads are accepted.
func NewHandler(det Detector, fetcher storage.Fetcher, opts Options) http.Handler {
	h := &handler{det: det, fetcher: fetcher, opts: opts}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(opts.Logger),
	)
	if opts.MaxRequestBodySize > 0 {
		r.Use(requestSizeLimiter(opts.MaxRequestBodySize))
	}

	r.GET("/health", h.health)
	api := r.Group("/api/v1")
	api.POST("/detect", h.detect)
	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": h.opts.Version,
		"ocr":     h.opts.OCRAvailable,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) detect(c *gin.Context) {
	ctx := c.Request.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	var (
		img    image.Image
		source string
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		img, source, err = h.fromUpload(c)
	} else {
		img, source, err = h.fromURL(ctx, c)
	}
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			respondError(c, h.opts.Logger, reqErr.status, reqErr.msg, reqErr.err)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			respondError(c, h.opts.Logger, http.StatusGatewayTimeout, "image fetch timeout", err)
			return
		}
		h.opts.Logger.Warn().Err(err).Str("source", source).Msg("image load failed")
		c.JSON(http.StatusUnprocessableEntity, pipeline.LoadFailure(err))
		return
	}

	img = imaging.Fit(img, h.opts.MaxWidth, h.opts.MaxHeight)

	done := make(chan pipeline.Result, 1)
	go func() { done <- h.det.Run(img) }()

	select {
	case res := <-done:
		h.opts.Logger.Info().
			Str("source", source).
			Bool("ok", res.Succeeded).
			Str("strategy", res.StrategyID).
			Float64("angle", res.Angle).
			Int("attempts", res.Attempts).
			Msg(res.Message)
		c.JSON(http.StatusOK, res)
	case <-ctx.Done():
		respondError(c, h.opts.Logger, http.StatusGatewayTimeout, "detection timeout", ctx.Err())
	}
}

func (h *handler) fromUpload(c *gin.Context) (image.Image, string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, "", classifyBodyError(err, "missing multipart field \"image\"")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fh.Filename, err
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	return img, fh.Filename, err
}

func (h *handler) fromURL(ctx context.Context, c *gin.Context) (image.Image, string, error) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", classifyBodyError(err, "invalid request format")
	}
	if err := validateImageURL(req.URL); err != nil {
		return nil, req.URL, &requestError{status: http.StatusBadRequest, msg: "invalid image URL", err: err}
	}
	if h.fetcher == nil {
		return nil, req.URL, &requestError{
			status: http.StatusNotImplemented,
			msg:    "remote images are not enabled",
			err:    storage.ErrUnsupportedScheme,
		}
	}

	img, err := h.fetcher.Fetch(ctx, req.URL)
	if errors.Is(err, storage.ErrUnsupportedScheme) {
		return nil, req.URL, &requestError{status: http.StatusBadRequest, msg: "invalid image URL", err: err}
	}
	return img, req.URL, err
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if !storage.IsRemote(raw) {
		return fmt.Errorf("scheme %q: %w", u.Scheme, storage.ErrUnsupportedScheme)
	}
	if u.Host == "" {
		return errors.New("URL must have a valid host")
	}
	return nil
}

// requestError is a client-side problem with a fixed status code.
type requestError struct {
	status int
	msg    string
	err    error
}

func (e *requestError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func classifyBodyError(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large", err: err}
	}
	return &requestError{status: http.StatusBadRequest, msg: msg, err: err}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func respondError(c *gin.Context, logger zerolog.Logger, code int, message string, err error) {
	logger.Error().
		Err(err).
		Int("status_code", code).
		Str("path", c.Request.URL.Path).
		Str("ip", c.ClientIP()).
		Msg(message)

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
