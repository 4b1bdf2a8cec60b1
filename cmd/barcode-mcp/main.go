package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/barcode-tools-mcp/internal/batch"
	"github.com/ironsheep/barcode-tools-mcp/internal/config"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
	"github.com/ironsheep/barcode-tools-mcp/internal/server"
	"github.com/ironsheep/barcode-tools-mcp/internal/transport"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `barcode-mcp - barcode and label code reader

Usage:
  barcode-mcp [-config FILE]                       Serve MCP over stdin/stdout
  barcode-mcp [-config FILE] scan FILE|URL...      Detect codes and print JSON results
  barcode-mcp [-config FILE] batch [-expected FILE] [-workers N] DIR
                                                   Process a directory and print a JSON report
  barcode-mcp [-config FILE] http                  Serve the HTTP API

Options:
  --version, -v    Print version information
  --help, -h       Print this help message
  -config FILE     YAML or JSON configuration file

Environment variables override the configuration file, e.g.:
  BARCODE_MCP_LOG_LEVEL=debug
  BARCODE_MCP_STRATEGIES=direct,region,full
  BARCODE_MCP_ANGLES=0,-15,15
  BARCODE_MCP_PORT=8080

In MCP mode stdout carries the protocol; logs go to stderr.
`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("barcode-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Print(usage)
			return
		}
	}

	global := flag.NewFlagSet("barcode-mcp", flag.ExitOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "configuration file")
	_ = global.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "barcode-mcp: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel)
	logger.Debug().Str("version", Version).Str("built", BuildTime).Str("commit", GitCommit).Msg("starting")

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	args := global.Args()
	mode := ""
	if len(args) > 0 {
		mode, args = args[0], args[1:]
	}

	var code int
	switch mode {
	case "":
		code = runMCP(ctx, a)
	case "scan":
		code = runScan(ctx, a, args)
	case "batch":
		code = runBatch(ctx, a, args)
	case "http":
		code = runHTTP(ctx, a)
	default:
		fmt.Fprintf(os.Stderr, "barcode-mcp: unknown command %q\n\n%s", mode, usage)
		code = 2
	}

	stop()
	a.Close()
	os.Exit(code)
}

func runMCP(ctx context.Context, a *app) int {
	p, err := a.newPipeline()
	if err != nil {
		a.logger.Error().Err(err).Msg("pipeline")
		return 1
	}
	runner, err := a.batchRunner()
	if err != nil {
		a.logger.Error().Err(err).Msg("batch runner")
		return 1
	}

	srv := server.New(server.Options{
		Version:  Version,
		Detector: p,
		Fetcher:  a.router,
		Cache:    a.cache,
		Locator:  a.locator,
		Batch:    runner,
		OCR:      a.ocrInfo,
		Logger:   a.logger.With().Str("component", "mcp").Logger(),
	})
	a.logger.Info().Str("version", Version).Msg("MCP server listening on stdio")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error().Err(err).Msg("server error")
		return 1
	}
	return 0
}

// scanResult is one line of scan output.
type scanResult struct {
	Ref string `json:"ref"`
	pipeline.Result
}

// runScan exits non-zero when any reference could not be read.
func runScan(ctx context.Context, a *app, refs []string) int {
	if len(refs) == 0 {
		fmt.Fprint(os.Stderr, "barcode-mcp: scan needs at least one FILE or URL\n")
		return 2
	}
	p, err := a.newPipeline()
	if err != nil {
		a.logger.Error().Err(err).Msg("pipeline")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	code := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return 130
		}
		var res pipeline.Result
		img, err := a.router.Fetch(ctx, ref)
		if err != nil {
			res = pipeline.LoadFailure(err)
		} else {
			res = p.Run(img)
			a.router.Release(ref)
		}
		if !res.Succeeded {
			code = 1
		}
		if err := enc.Encode(scanResult{Ref: ref, Result: res}); err != nil {
			a.logger.Error().Err(err).Msg("write result")
			return 1
		}
	}
	return code
}

func runBatch(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	expectedPath := fs.String("expected", "", "YAML file mapping file names to expected payloads")
	workers := fs.Int("workers", a.cfg.Batch.Workers, "parallel workers")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, "barcode-mcp: batch needs exactly one DIR\n")
		return 2
	}

	var expected map[string]string
	if *expectedPath != "" {
		var err error
		if expected, err = batch.LoadExpected(*expectedPath); err != nil {
			a.logger.Error().Err(err).Msg("expected manifest")
			return 1
		}
	}

	runner, err := a.batchRunner()
	if err != nil {
		a.logger.Error().Err(err).Msg("batch runner")
		return 1
	}
	runner.Workers = *workers

	rep, err := runner.Run(ctx, fs.Arg(0), expected)
	if err != nil {
		a.logger.Error().Err(err).Msg("batch failed")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		a.logger.Error().Err(err).Msg("write report")
		return 1
	}
	return 0
}

func runHTTP(ctx context.Context, a *app) int {
	p, err := a.newPipeline()
	if err != nil {
		a.logger.Error().Err(err).Msg("pipeline")
		return 1
	}

	handler := transport.NewHandler(p, a.router, transport.Options{
		Version:            Version,
		MaxRequestBodySize: a.cfg.HTTP.MaxRequestBodySize,
		RequestTimeout:     a.cfg.HTTP.RequestTimeout.D(),
		MaxWidth:           a.cfg.Image.MaxWidth,
		MaxHeight:          a.cfg.Image.MaxHeight,
		OCRAvailable:       a.ocrInfo.Available,
		Logger:             a.logger.With().Str("component", "http").Logger(),
	})

	srv := &http.Server{
		Addr:              a.cfg.ServerAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.HTTP.RequestTimeout.D(),
		WriteTimeout:      a.cfg.HTTP.RequestTimeout.D() + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("address", srv.Addr).
			Dur("timeout", a.cfg.HTTP.RequestTimeout.D()).
			Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error().Err(err).Msg("HTTP server failed")
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("server forced to shutdown")
		return 1
	}
	a.logger.Info().Msg("server exited")
	return 0
}
