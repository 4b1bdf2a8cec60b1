// Package detection locates the region of an image most likely to contain a
// barcode label.
//
// # Algorithm Overview
//
// Location works on the binary mask produced by imaging.GradientMask:
//
//  1. Mask: grayscale, morphological gradient, Otsu binarization, closing.
//  2. Components: 8-connected flood fill groups foreground pixels into blobs.
//  3. Selection: the blob with the largest pixel count wins. Ties go to the
//     blob found first in row-major scan order.
//
// The winner's axis-aligned bounding box is reported in the source image's
// coordinate space.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// A BoundingBox is (X, Y, Width, Height) with (X, Y) the inclusive top-left
// corner.
package detection
