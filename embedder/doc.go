// Package embedder runs instrumented modules on wazero.
//
// The runtime provides the "__" host module every instrumented module
// imports. out_of_instructions aborts the running call and
// update_available_memory enforces a per-instance memory quota. Before each
// call the instruction counter is set to the caller's budget and read back
// afterwards.
//
//	rt, err := embedder.New(ctx, embedder.Config{})
//	out, err := instrument.Instrument(wasmBytes, instrument.Config{})
//	mod, err := rt.Load(ctx, out)
//	inst, err := mod.Instantiate(ctx, embedder.InstanceConfig{AvailableMemory: 64 << 20})
//	if _, err := inst.Start(ctx, 1_000_000); err != nil { ... }
//	res, err := inst.Call(ctx, "canister_update inc", 1_000_000)
//	if errors.Is(err, errors.ErrOutOfInstructions) { ... }
package embedder
