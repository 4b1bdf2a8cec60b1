// Package server implements the MCP (Model Context Protocol) server for
// barcode detection.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Detection:
//   - barcode_detect: Run the detection pipeline on a file or remote image
//   - barcode_detect_batch: Run it over a directory with accuracy statistics
//
// Image inspection:
//   - image_load: Dimensions and format
//   - image_rotate: Rotated copy as PNG
//   - image_locate_region: Dominant code region
//   - image_crop: Rectangular region as PNG
//   - image_sample_color: Pixel color and lightness
//
// OCR:
//   - ocr_info: Text recognition availability
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with
// code -32000 and the Go error string as data. A barcode_detect call that
// runs but reads nothing is a normal result with succeeded=false.
package server
