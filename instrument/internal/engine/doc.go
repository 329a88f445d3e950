// Package engine orchestrates the instrumentation pass.
//
// Transformation pipeline:
//  1. Parse and validate the module, decode every body once
//  2. Prepend the host imports and shift every function reference by two
//  3. Export table, memory and mutable globals under canonical names
//  4. Plan injection points per body and splice counter decrements
//  5. Hook memory.grow, add the counter global and decrement helper
//  6. Relocate start, extract data segments, validate and encode
package engine
