package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/barcode-tools-mcp/internal/batch"
	"github.com/ironsheep/barcode-tools-mcp/internal/config"
	"github.com/ironsheep/barcode-tools-mcp/internal/detection"
	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
	"github.com/ironsheep/barcode-tools-mcp/internal/ocr"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
	"github.com/ironsheep/barcode-tools-mcp/internal/storage"
	"github.com/ironsheep/barcode-tools-mcp/internal/symbol"
)

// app holds the long-lived collaborators shared by every mode.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	decoder *symbol.Decoder
	tess    *ocr.Tesseract
	ocrInfo ocr.Info
	locator *detection.Locator
	cache   *imaging.ImageCache
	router  *storage.Router
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		decoder: symbol.New(),
		locator: detection.NewLocator(cfg.Morphology.KernelSize),
		cache:   imaging.NewBoundedImageCache(cfg.Image.MaxWidth, cfg.Image.MaxHeight),
	}

	ocrOpts := ocr.Options{Languages: cfg.OCR.Languages, TessdataPrefix: cfg.OCR.TessdataPrefix}
	if cfg.OCR.Enabled {
		tess, err := ocr.New(ocrOpts)
		a.ocrInfo = ocr.Describe(tess, ocrOpts, err)
		switch {
		case errors.Is(err, ocr.ErrUnavailable):
			logger.Warn().Msg("text recognition unavailable in this build; text strategies will fail")
		case err != nil:
			logger.Warn().Err(err).Msg("text recognizer failed to start; text strategies will fail")
		default:
			a.tess = tess
		}
	} else {
		a.ocrInfo = ocr.Info{Backend: "disabled", Error: "disabled by configuration"}
	}

	a.router = &storage.Router{
		HTTP:  storage.NewHTTPFetcher(cfg.Fetch.Timeout.D()),
		Files: a.cache,
	}
	if cfg.Azure.AccountName != "" {
		az, err := storage.NewAzureFetcher(cfg.Azure.AccountName, cfg.Azure.AccountKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("azure storage: %w", err)
		}
		a.router.Azure = az
	}

	logger.Debug().
		Strs("strategies", cfg.Detection.Strategies).
		Floats64("angles", cfg.Detection.Angles).
		Int("kernel_size", cfg.Morphology.KernelSize).
		Strs("symbologies", a.decoder.Formats()).
		Bool("ocr", a.tess != nil).
		Bool("azure", a.router.Azure != nil).
		Msg("configured")
	return a, nil
}

// newPipeline builds a pipeline over the shared capabilities.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	// A nil *ocr.Tesseract must not become a non-nil interface.
	var rec pipeline.TextRecognizer
	if a.tess != nil {
		rec = a.tess
	}
	strategies, err := pipeline.StrategiesByID(a.cfg.Detection.Strategies, a.decoder, rec, a.locator)
	if err != nil {
		return nil, err
	}
	return pipeline.New(strategies,
		pipeline.WithAngles(a.cfg.Detection.Angles),
		pipeline.WithLogger(a.logger.With().Str("component", "pipeline").Logger()),
	), nil
}

func (a *app) batchRunner() (*batch.Runner, error) {
	// Validate the strategy list once so the factory cannot fail.
	p, err := a.newPipeline()
	if err != nil {
		return nil, err
	}
	return &batch.Runner{
		NewDetector: func() batch.Detector {
			p, _ := a.newPipeline()
			return p
		},
		StrategyIDs: p.StrategyIDs(),
		Workers:     a.cfg.Batch.Workers,
		Extensions:  a.cfg.Image.SupportedFormats,
		Cache:       a.cache,
		Logger:      a.logger.With().Str("component", "batch").Logger(),
	}, nil
}

// Close releases the text recognizer.
func (a *app) Close() {
	if a.tess != nil {
		if err := a.tess.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing text recognizer")
		}
	}
}
