// Package imaging provides the raster operations the barcode pipeline and its
// callers rely on: loading and caching images, rotating with an expanded
// canvas, cropping to bounding boxes, building binary gradient masks for
// region location, and sampling label colors.
//
// All operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is at the top-left corner, X increases rightward, and Y
// increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// Derived images (rotated, cropped, masks) are always returned with their
// bounds anchored at (0,0), regardless of the source image's origin.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Every other function is
// stateless and never mutates its input, so it can be called concurrently on
// the same image.
//
// # Supported Formats
//
// Decoding supports PNG, JPEG and GIF from the standard library plus BMP, TIFF
// and WebP from golang.org/x/image.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Coordinates outside image bounds
//   - Invalid region specifications (x1 >= x2 or y1 >= y2)
//   - File I/O errors during image loading
//   - Undecodable image data (ErrUnsupportedFormat)
//
// Rotate and GradientMask never fail for a valid image.
package imaging
