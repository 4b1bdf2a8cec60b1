// Package pipeline implements cascading barcode detection with rotation
// retry.
//
// A Pipeline holds an ordered list of Strategy values. Run tries each
// strategy in order, and each strategy is replayed across a fixed sequence
// of rotation angles (StandardAngles) to compensate for tilted captures.
// The first strategy and angle that produce a non-empty payload win; no
// further work is done. When everything fails, the failure reason of the
// last attempt is reported.
//
// # Strategies
//
// Three strategies are provided, in their default priority order:
//
//   - DirectDecode ("direct"): a symbology decoder on the full image.
//   - RegionGuided ("region"): locate the dominant foreground region, crop
//     it, and run text recognition on the crop.
//   - FullImage ("full"): text recognition on the whole image.
//
// Strategies depend on capability providers (SymbolDecoder, TextRecognizer,
// RegionLocator) injected at construction. Capability errors and panics are
// converted into Failure outcomes at the strategy boundary, so a single
// misbehaving provider never aborts a run.
//
// # Outcomes and Results
//
// Every attempt yields an Outcome, which is either a success carrying a
// payload or a failure carrying a reason. Run folds the attempts into a
// Result whose Message is always populated:
//
//	detected via direct: CODE_128 (angle -30°)
//	failed to detect; last error: no text found
//
// # Concurrency
//
// Run is synchronous. A Pipeline is not mutated by Run and may be shared
// between goroutines as long as its capability providers tolerate
// concurrent use. The Tesseract recognizer in package ocr serializes its
// own calls.
package pipeline
