package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/barcode-tools-mcp/internal/batch"
	"github.com/ironsheep/barcode-tools-mcp/internal/detection"
	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

// maxReportedComponents caps the component list returned by
// image_locate_region.
const maxReportedComponents = 10

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "barcode_detect", "image_crop").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// A detection that runs but finds nothing is not an error: its Result is
// returned as content with succeeded=false.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn().Err(err).Str("tool", params.Name).Msg("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Detection
	case "barcode_detect":
		return s.handleBarcodeDetect(ctx, args)
	case "barcode_detect_batch":
		return s.handleBarcodeDetectBatch(ctx, args)

	// Image inspection
	case "image_load":
		return s.handleImageLoad(args)
	case "image_rotate":
		return s.handleImageRotate(args)
	case "image_locate_region":
		return s.handleImageLocateRegion(args)
	case "image_crop":
		return s.handleImageCrop(args)
	case "image_sample_color":
		return s.handleImageSampleColor(args)

	// OCR
	case "ocr_info":
		return s.ocr, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Detection Handlers ===

type barcodeDetectArgs struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// handleBarcodeDetect runs the pipeline on a local file or a remote
// reference. An image that cannot be loaded yields a failed Result rather
// than a tool error.
func (s *Server) handleBarcodeDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a barcodeDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.detector == nil {
		return nil, errors.New("barcode detection is not configured")
	}

	ref := strings.TrimSpace(a.URL)
	if ref == "" {
		ref = strings.TrimSpace(a.Path)
	}
	if ref == "" {
		return nil, errors.New("either path or url is required")
	}

	img, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return pipeline.LoadFailure(err), nil
	}
	if r, ok := s.fetcher.(releaser); ok {
		defer r.Release(ref)
	}
	return s.detector.Run(img), nil
}

// releaser is implemented by fetchers that cache what they load.
type releaser interface {
	Release(ref string)
}

type barcodeDetectBatchArgs struct {
	Directory string `json:"directory"`
	Expected  string `json:"expected"`
	Workers   int    `json:"workers"`
}

func (s *Server) handleBarcodeDetectBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a barcodeDetectBatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.batch == nil {
		return nil, errors.New("batch detection is not configured")
	}
	if a.Directory == "" {
		return nil, errors.New("directory is required")
	}

	var expected map[string]string
	if a.Expected != "" {
		var err error
		if expected, err = batch.LoadExpected(a.Expected); err != nil {
			return nil, err
		}
	}

	runner := *s.batch
	if a.Workers > 0 {
		runner.Workers = a.Workers
	}
	return runner.Run(ctx, a.Directory, expected)
}

// === Image Inspection Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type imageRotateArgs struct {
	Path  string  `json:"path"`
	Angle float64 `json:"angle"`
}

// RotateResult is a rotated image as base64 PNG.
type RotateResult struct {
	Angle float64 `json:"angle"`
	*imaging.CropResult
}

func (s *Server) handleImageRotate(args json.RawMessage) (interface{}, error) {
	var a imageRotateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNG(imaging.Rotate(img, a.Angle))
	if err != nil {
		return nil, err
	}
	return &RotateResult{Angle: a.Angle, CropResult: encoded}, nil
}

type imageLocateRegionArgs struct {
	Path       string `json:"path"`
	KernelSize int    `json:"kernel_size"`
}

// LocateResult reports the dominant foreground region and the largest
// components behind it.
type LocateResult struct {
	Found      bool                   `json:"found"`
	Region     *detection.BoundingBox `json:"region,omitempty"`
	Components []detection.Component  `json:"components"`
	Total      int                    `json:"total_components"`
}

func (s *Server) handleImageLocateRegion(args json.RawMessage) (interface{}, error) {
	var a imageLocateRegionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	loc := s.locator
	if a.KernelSize > 0 {
		loc = detection.NewLocator(a.KernelSize)
	}
	comps := loc.Components(img)

	res := &LocateResult{Total: len(comps), Components: []detection.Component{}}
	if len(comps) > 0 {
		res.Found = true
		region := comps[0].Bounds
		res.Region = &region
	}
	if len(comps) > maxReportedComponents {
		comps = comps[:maxReportedComponents]
	}
	res.Components = append(res.Components, comps...)
	return res, nil
}

type imageCropArgs struct {
	Path  string  `json:"path"`
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleImageCrop(args json.RawMessage) (interface{}, error) {
	var a imageCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, a.X1, a.Y1, a.X2, a.Y2, a.Scale)
}

type imageSampleColorArgs struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (s *Server) handleImageSampleColor(args json.RawMessage) (interface{}, error) {
	var a imageSampleColorArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(img, a.X, a.Y)
}
