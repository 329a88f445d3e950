package engine

import "github.com/wippyai/wasm-instrument/wasm"

// hookMemoryGrow rewrites every memory.grow in code to
//
//	local.tee $n; memory.grow; local.get $n; call update_available_memory
//
// adding one i32 scratch local to body when at least one site exists. It
// returns the rewritten code and the number of sites.
func hookMemoryGrow(body *wasm.FuncBody, ft *wasm.FuncType, code []wasm.Instruction) ([]wasm.Instruction, int) {
	sites := 0
	for i := range code {
		if code[i].Opcode == wasm.OpMemoryGrow {
			sites++
		}
	}
	if sites == 0 {
		return code, 0
	}

	scratch := uint32(uint64(len(ft.Params)) + body.NumLocals())
	body.Locals = append(body.Locals, wasm.LocalEntry{Count: 1, ValType: wasm.ValI32})

	out := make([]wasm.Instruction, 0, len(code)+3*sites)
	for _, instr := range code {
		if instr.Opcode != wasm.OpMemoryGrow {
			out = append(out, instr)
			continue
		}
		out = append(out, localTee(scratch), instr, localGet(scratch), call(updateAvailableMemoryFn))
	}
	return out, sites
}
