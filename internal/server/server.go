package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ironsheep/barcode-tools-mcp/internal/batch"
	"github.com/ironsheep/barcode-tools-mcp/internal/detection"
	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
	"github.com/ironsheep/barcode-tools-mcp/internal/ocr"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
	"github.com/ironsheep/barcode-tools-mcp/internal/storage"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "barcode-tools-mcp"
)

// Detector runs the detection pipeline on one image.
type Detector interface {
	Run(img image.Image) pipeline.Result
}

// Options wires the server to its collaborators. Every field is optional;
// tools whose collaborator is missing fail with a descriptive error.
type Options struct {
	Version  string
	Detector Detector
	// Fetcher resolves image references for barcode_detect. When nil, a
	// local-files-only router over Cache is used.
	Fetcher storage.Fetcher
	Cache   *imaging.ImageCache
	Locator *detection.Locator
	Batch   *batch.Runner
	OCR     ocr.Info
	Logger  zerolog.Logger
}

// Server handles MCP protocol communication
type Server struct {
	version  string
	detector Detector
	fetcher  storage.Fetcher
	cache    *imaging.ImageCache
	locator  *detection.Locator
	batch    *batch.Runner
	ocr      ocr.Info
	logger   zerolog.Logger
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	cache := opts.Cache
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &storage.Router{Files: cache}
	}
	locator := opts.Locator
	if locator == nil {
		locator = detection.NewLocator(imaging.DefaultKernelSize)
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		version:  version,
		detector: opts.Detector,
		fetcher:  fetcher,
		cache:    cache,
		locator:  locator,
		batch:    opts.Batch,
		ocr:      opts.OCR,
		logger:   opts.Logger,
	}
}

// Run serves MCP over stdin and stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to
// w. Malformed lines are logged and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Batch and crop arguments can be large.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn().Err(err).Msg("failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error().Err(err).Msg("failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	s.logger.Debug().Str("method", req.Method).Interface("id", req.ID).Msg("request")

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": s.version,
			},
		},
	}
}
