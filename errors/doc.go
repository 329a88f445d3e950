// Package errors provides structured error types for the instrumentation
// pipeline and the embedder that runs its output.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Instrumentation failures fall into four classes: decode errors
// for input that does not parse, encode errors for output that does not
// serialize, structural errors for well-formed modules with an unsupported
// shape, and reserved-symbol errors for export names the pass needs itself.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInstrument, errors.KindInvalidSegment).
//		Path("data[2]").
//		Detail("offset is not an i32.const").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TooManyMemories(2)
//	err := errors.SegmentOutOfBounds(0, 65530, 16, 65536)
//
// Match classes with errors.Is against the sentinels, or IsStructural:
//
//	if errors.Is(err, errors.ErrDecode) { ... }
package errors
