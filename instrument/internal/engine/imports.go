package engine

import (
	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/wasm"
)

// Host imports prepended to the function index space.
const (
	HostModule                = "__"
	OutOfInstructionsImport   = "out_of_instructions"
	UpdateAvailableMemoryName = "update_available_memory"

	outOfInstructionsFn     uint32 = 0
	updateAvailableMemoryFn uint32 = 1
	injectedImportCount     uint32 = 2
)

// injectImports prepends out_of_instructions: () -> () and
// update_available_memory: (i32, i32) -> i32 as function imports 0 and 1.
// Callers must shift every existing function reference afterwards.
func injectImports(m *wasm.Module) {
	ooi := m.AddType(wasm.FuncType{})
	uam := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	injected := []wasm.Import{
		{Module: HostModule, Name: OutOfInstructionsImport, Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: ooi}},
		{Module: HostModule, Name: UpdateAvailableMemoryName, Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: uam}},
	}
	m.Imports = append(injected, m.Imports...)
}

// shiftBy returns a visitor callback adding delta to a function index.
func shiftBy(delta uint32) func(*uint32) {
	return func(idx *uint32) { *idx += delta }
}

// visitFuncRefs calls fn on every function index site of the module: call
// and return_call targets, ref.func operands in bodies and constant
// expressions, function exports, element entries and the start function.
func visitFuncRefs(m *wasm.Module, bodies [][]wasm.Instruction, fn func(*uint32)) error {
	for i := range bodies {
		visitInstrs(bodies[i], fn)
	}

	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.KindFunc {
			fn(&m.Exports[i].Idx)
		}
	}

	for i := range m.Elements {
		el := &m.Elements[i]
		for j := range el.FuncIdxs {
			fn(&el.FuncIdxs[j])
		}
		for j := range el.Exprs {
			expr, err := visitExpr(el.Exprs[j], fn)
			if err != nil {
				return errors.New(errors.PhaseDecode, errors.KindMalformed).
					Path(elemPath(i, j)).
					Cause(err).
					Detail("decode element expression").
					Build()
			}
			el.Exprs[j] = expr
		}
	}

	for i := range m.Globals {
		expr, err := visitExpr(m.Globals[i].Init, fn)
		if err != nil {
			return errors.New(errors.PhaseDecode, errors.KindMalformed).
				Path(globalPath(i)).
				Cause(err).
				Detail("decode initializer").
				Build()
		}
		m.Globals[i].Init = expr
	}

	if m.Start != nil {
		fn(m.Start)
	}
	return nil
}

// visitInstrs reports whether any function index site was visited.
func visitInstrs(code []wasm.Instruction, fn func(*uint32)) bool {
	visited := false
	for i := range code {
		switch imm := code[i].Imm.(type) {
		case wasm.CallImm:
			fn(&imm.FuncIdx)
			code[i].Imm = imm
			visited = true
		case wasm.RefFuncImm:
			fn(&imm.FuncIdx)
			code[i].Imm = imm
			visited = true
		}
	}
	return visited
}

// visitExpr rewrites a constant expression. The original bytes are returned
// untouched when the expression holds no function reference.
func visitExpr(expr []byte, fn func(*uint32)) ([]byte, error) {
	if len(expr) == 0 {
		return expr, nil
	}
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil {
		return nil, err
	}
	if !visitInstrs(instrs, fn) {
		return expr, nil
	}
	return wasm.EncodeInstructions(instrs), nil
}
