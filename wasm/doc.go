// Package wasm parses and encodes WebAssembly binary modules.
//
// The codec covers WebAssembly 2.0 together with the post-2.0 proposals a
// metered canister may use: tail calls, SIMD, bulk memory, multi-memory and
// memory64 limits, and exception handling. Modules using the GC, threads or
// typed function reference proposals are rejected with ErrUnsupportedFeature.
//
// Function bodies and init expressions are kept as raw bytes. Callers that
// rewrite code decode them with DecodeInstructions and write them back with
// EncodeInstructions:
//
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//	    return err
//	}
//	instrs, err := wasm.DecodeInstructions(m.Code[0].Code)
//	// ...
//	m.Code[0].Code = wasm.EncodeInstructions(instrs)
//	out := m.Encode()
//
// Validate checks index bounds, export uniqueness and section counts. It
// does not type-check function bodies.
package wasm
