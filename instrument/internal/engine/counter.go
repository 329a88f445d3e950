package engine

import "github.com/wippyai/wasm-instrument/wasm"

// decrementHelper builds the body of the (i32) -> i32 helper called before
// bulk operations. It charges the zero-extended operand, traps through
// out_of_instructions on underflow and returns the operand unchanged.
func decrementHelper(counter uint32) []wasm.Instruction {
	return []wasm.Instruction{
		globalGet(counter),
		localGet(0),
		{Opcode: wasm.OpI64ExtendI32U},
		{Opcode: wasm.OpI64Sub},
		globalSet(counter),
		globalGet(counter),
		i64Const(0),
		{Opcode: wasm.OpI64LtS},
		{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		call(outOfInstructionsFn),
		{Opcode: wasm.OpEnd},
		localGet(0),
		{Opcode: wasm.OpEnd},
	}
}

// addRuntimeSupport appends the decrement helper and the counter global at
// the indices recorded in data, exports the counter and relocates start.
func addRuntimeSupport(m *wasm.Module, data exportData) error {
	typeIdx := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, wasm.FuncBody{Code: wasm.EncodeInstructions(decrementHelper(data.counterGlobal))})

	m.Globals = append(m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true},
		Init: wasm.ConstI64Expr(0),
	})

	if err := addExport(m, CounterExport, wasm.KindGlobal, data.counterGlobal); err != nil {
		return err
	}
	if data.start != nil {
		return addExport(m, StartExport, wasm.KindFunc, *data.start)
	}
	return nil
}
