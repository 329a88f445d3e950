package engine

import "github.com/wippyai/wasm-instrument/wasm"

// exportData holds the indices fixed before any body is rewritten.
type exportData struct {
	start         *uint32
	counterGlobal uint32
	decrementFunc uint32
}

// inject splices decrement code into code at the planned points.
func inject(code []wasm.Instruction, points []InjectionPoint, data exportData) []wasm.Instruction {
	if len(points) == 0 {
		return code
	}
	out := make([]wasm.Instruction, 0, len(code)+len(points)*10)
	last := 0
	for _, pt := range points {
		out = append(out, code[last:pt.Position]...)
		out = append(out, data.decrement(pt)...)
		last = pt.Position
	}
	return append(out, code[last:]...)
}

func (d exportData) decrement(pt InjectionPoint) []wasm.Instruction {
	if pt.Kind == CostDynamic {
		return []wasm.Instruction{call(d.decrementFunc)}
	}
	seq := []wasm.Instruction{
		globalGet(d.counterGlobal),
		i64Const(int64(pt.Cost)),
		{Opcode: wasm.OpI64Sub},
		globalSet(d.counterGlobal),
	}
	if pt.Scope == ScopeReentrantBlockStart {
		seq = append(seq, d.overflowCheck()...)
	}
	return seq
}

// overflowCheck calls out_of_instructions when the counter went negative.
func (d exportData) overflowCheck() []wasm.Instruction {
	return []wasm.Instruction{
		globalGet(d.counterGlobal),
		i64Const(0),
		{Opcode: wasm.OpI64LtS},
		{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		call(outOfInstructionsFn),
		{Opcode: wasm.OpEnd},
	}
}

func call(funcIdx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: funcIdx}}
}

func globalGet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func globalSet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func localGet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: idx}}
}

func localTee(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: idx}}
}

func i64Const(v int64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
}
