// Package wasminstrument rewrites WebAssembly canister modules so that a host
// can bound the number of instructions they execute.
//
// The module is organized into packages with distinct responsibilities:
//
//	wasm-instrument/
//	├── instrument/            Public instrumentation API and cost tables
//	│   └── internal/engine/   Planner, rewriter and the module-level passes
//	├── embedder/              wazero host for instrumented modules
//	├── methods/               Canister method export names
//	├── wasm/                  Core WASM binary decoding and encoding
//	├── errors/                Structured error types
//	├── internal/telemetry/    OpenTelemetry tracer provider setup
//	└── cmd/wasm-instrument/   Command line interface
//
// # Quick Start
//
// Instrument a module and call one of its methods with a budget:
//
//	out, err := instrument.Instrument(wasmBytes, instrument.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := embedder.New(ctx, embedder.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, out)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx, embedder.InstanceConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	res, err := inst.Call(ctx, "canister_update inc", 1_000_000)
//
// # Instrumentation
//
// The instrumented module imports "__" "out_of_instructions" and
// "__" "update_available_memory" as functions 0 and 1, exports its table,
// memory and mutable globals, and decrements the exported i64 global
// "canister counter_instructions" on every execution path. Data segments are
// removed from the binary and returned separately so the host can write
// them into memory itself.
package wasminstrument
