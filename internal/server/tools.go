package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection
		{
			Name: "barcode_detect",
			Description: "Read the barcode or label code in an image. Tries a direct symbol decode, then text " +
				"recognition over the located code region, then over the whole image, each at several rotation " +
				"angles. Returns the payload, the strategy and angle that found it, or the last failure reason.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"url": map[string]interface{}{
						"type":        "string",
						"description": "Remote image reference (http://, https:// or azblob://container/blob). Used instead of path when set.",
					},
				},
			},
		},
		{
			Name:        "barcode_detect_batch",
			Description: "Run barcode detection over every image in a directory and return per-file results with accuracy statistics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"directory": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to a directory of images (not recursive)",
					},
					"expected": map[string]interface{}{
						"type":        "string",
						"description": "Optional YAML file mapping file names to their true payloads, enabling match accuracy and edit distance",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Optional number of parallel workers",
					},
				},
				"required": []string{"directory"},
			},
		},

		// Image inspection
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_rotate",
			Description: "Rotate an image about its center (positive angles counter-clockwise) on an expanded canvas and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"angle": map[string]interface{}{
						"type":        "number",
						"description": "Rotation in degrees",
					},
				},
				"required": []string{"path", "angle"},
			},
		},
		{
			Name:        "image_locate_region",
			Description: "Locate the dominant high-contrast region (the likely code area) using a morphological gradient mask and connected components.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"kernel_size": map[string]interface{}{
						"type":        "integer",
						"description": "Optional structuring element size (odd, at least 3). Default 5",
						"default":     5,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_crop",
			Description: "Crop a rectangular region from an image and return it as base64-encoded PNG. Use this to zoom into a located code region.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
			},
		},
		{
			Name:        "image_sample_color",
			Description: "Get the exact color value at a pixel, including perceptual lightness, to judge print contrast.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate (0-based, from top)",
					},
				},
				"required": []string{"path", "x", "y"},
			},
		},

		// OCR
		{
			Name:        "ocr_info",
			Description: "Report whether text recognition is available in this build, with engine version and languages.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
