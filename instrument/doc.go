// Package instrument rewrites WebAssembly modules so that a host can bound
// the number of instructions a canister executes.
//
// # Overview
//
// The pass prepends two host imports, exports the module's boundary
// (table, memory, mutable globals), adds an i64 instruction counter and
// splices counter decrements at the start of every function and loop body
// and after every branch. Loop and function entries check the counter and
// call the host when it went negative. memory.grow is hooked so the host
// can enforce a memory quota, and the data section is lifted out for the
// host to install.
//
// Host interface of an instrumented module:
//
//	(import "__" "out_of_instructions" (func))
//	(import "__" "update_available_memory" (func (param i32 i32) (result i32)))
//	(export "canister counter_instructions" (global (mut i64)))
//	(export "canister_start" (func))   ;; when the input had a start function
//
// # Usage
//
//	out, err := instrument.Instrument(wasmBytes, instrument.Config{})
//	if errors.IsStructural(err) {
//	    // module shape not supported
//	}
//	// out.Binary, out.Data, out.ExportedMethods, out.CompilationCost
//
// Plan reports the injection points without rewriting:
//
//	plans, err := instrument.Plan(wasmBytes, nil)
package instrument
