// Package ocr provides the text recognition capability used by the
// region-guided and full-image detection strategies, backed by Tesseract.
//
// This package wraps the Tesseract OCR engine (via gosseract/v2). A single
// Tesseract value owns one long-lived engine client, because initializing
// Tesseract and loading language data is expensive.
//
// # Prerequisites
//
// Tesseract and its development headers must be installed, and the binary
// must be built with cgo enabled:
//   - Ubuntu/Debian: apt-get install tesseract-ocr libtesseract-dev libleptonica-dev
//   - macOS: brew install tesseract
//
// Language data files are required for each configured language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr-eng (for English)
//   - Other languages: tesseract-ocr-<lang> packages
//
// Builds without cgo compile a stub whose constructor returns ErrUnavailable.
// Callers treat that as "no recognizer" and the text strategies report
// "text recognizer unavailable".
//
// # Lifecycle
//
// Create the recognizer once with New, share it, and Close it on shutdown.
// The underlying client is not reentrant, so Recognize serializes calls with
// a mutex. Recognition never touches the filesystem: images are handed to
// Tesseract as in-memory PNG bytes.
//
// # Fragments
//
// Recognize returns word-level fragments (RIL_WORD) in Tesseract's reading
// order with confidences scaled to 0..1. If word boxes are unavailable the
// full text is split on whitespace instead, with zero bounds.
package ocr
