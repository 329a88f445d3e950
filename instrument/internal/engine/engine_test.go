package engine

import (
	"bytes"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/methods"
	"github.com/wippyai/wasm-instrument/wasm"
)

func body(instrs ...wasm.Instruction) wasm.FuncBody {
	return wasm.FuncBody{Code: wasm.EncodeInstructions(instrs)}
}

func memory(minPages uint64) wasm.MemoryType {
	return wasm.MemoryType{Limits: wasm.Limits{Min: minPages}}
}

func instrument(t *testing.T, m *wasm.Module) (*Result, *wasm.Module) {
	t.Helper()
	res, err := New(Config{}).Instrument(m.Encode())
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	out, err := wasm.ParseModuleValidate(res.Binary)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	return res, out
}

func exportIdx(t *testing.T, m *wasm.Module, name string, kind byte) uint32 {
	t.Helper()
	exp, ok := m.ExportByName(name)
	if !ok {
		t.Fatalf("missing export %q", name)
	}
	if exp.Kind != kind {
		t.Fatalf("export %q kind = %d, want %d", name, exp.Kind, kind)
	}
	return exp.Idx
}

func TestInstrument_EmptyFunction(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{body(end())},
	}
	_, out := instrument(t, m)

	if len(out.Imports) != 2 {
		t.Fatalf("imports = %d, want 2", len(out.Imports))
	}
	want := []struct {
		name string
		ft   wasm.FuncType
	}{
		{OutOfInstructionsImport, wasm.FuncType{}},
		{UpdateAvailableMemoryName, wasm.FuncType{
			Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
			Results: []wasm.ValType{wasm.ValI32},
		}},
	}
	for i, w := range want {
		imp := out.Imports[i]
		if imp.Module != HostModule || imp.Name != w.name || imp.Desc.Kind != wasm.KindFunc {
			t.Errorf("import %d = %s.%s kind %d", i, imp.Module, imp.Name, imp.Desc.Kind)
		}
		ft := out.TypeAt(imp.Desc.TypeIdx)
		if ft == nil || len(ft.Params) != len(w.ft.Params) || len(ft.Results) != len(w.ft.Results) {
			t.Errorf("import %d type = %+v, want %+v", i, ft, w.ft)
		}
	}

	counter := exportIdx(t, out, CounterExport, wasm.KindGlobal)
	if counter != 0 {
		t.Errorf("counter global = %d, want 0", counter)
	}
	gt, _ := out.GlobalTypeAt(counter)
	if gt.ValType != wasm.ValI64 || !gt.Mutable {
		t.Errorf("counter type = %+v, want mut i64", gt)
	}

	if out.NumFuncs() != 4 {
		t.Fatalf("functions = %d, want 4", out.NumFuncs())
	}
	helper := out.GetFuncType(3)
	if helper == nil || !reflect.DeepEqual(helper.Params, []wasm.ValType{wasm.ValI32}) ||
		!reflect.DeepEqual(helper.Results, []wasm.ValType{wasm.ValI32}) {
		t.Errorf("helper type = %+v, want (i32) -> i32", helper)
	}

	wantBody := []byte{
		0x23, 0x00, // global.get 0
		0x42, 0x00, // i64.const 0
		0x7D,       // i64.sub
		0x24, 0x00, // global.set 0
		0x23, 0x00, // global.get 0
		0x42, 0x00, // i64.const 0
		0x53,       // i64.lt_s
		0x04, 0x40, // if
		0x10, 0x00, // call 0
		0x0B,       // end
		0x0B,       // end
	}
	if !bytes.Equal(out.Code[0].Code, wantBody) {
		t.Errorf("body =\n% x\nwant\n% x", out.Code[0].Code, wantBody)
	}
	if !bytes.Equal(out.Code[1].Code, wasm.EncodeInstructions(decrementHelper(0))) {
		t.Errorf("helper body = % x", out.Code[1].Code)
	}
}

func TestInstrument_Loop(t *testing.T) {
	m := &wasm.Module{
		Types:   []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "canister_update run", Kind: wasm.KindFunc, Idx: 0}},
		Code:    []wasm.FuncBody{body(countdownLoop()...)},
	}
	res, out := instrument(t, m)

	code, err := wasm.DecodeInstructions(out.Code[0].Code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var subs []int64
	checks := 0
	for i, in := range code {
		if in.Opcode == wasm.OpI64Sub {
			subs = append(subs, code[i-1].Imm.(wasm.I64Imm).Value)
		}
		if in.Opcode == wasm.OpI64LtS {
			checks++
		}
	}
	if !reflect.DeepEqual(subs, []int64{0, 5}) {
		t.Errorf("decrements = %v, want [0 5]", subs)
	}
	if checks != 2 {
		t.Errorf("overflow checks = %d, want 2", checks)
	}
	if exportIdx(t, out, "canister_update run", wasm.KindFunc) != 2 {
		t.Error("method export not shifted")
	}
	if res.Stats.InjectionPoints != 2 {
		t.Errorf("points = %d, want 2", res.Stats.InjectionPoints)
	}
	if len(res.ExportedMethods) != 1 || res.ExportedMethods[0].Kind != methods.KindUpdate {
		t.Errorf("methods = %v", res.ExportedMethods)
	}
}

func TestInstrument_MemoryGrow(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{memory(1)},
		Code: []wasm.FuncBody{body(
			localGet(0),
			wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
			end(),
		)},
	}
	res, out := instrument(t, m)

	if !reflect.DeepEqual(out.Code[0].Locals, []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}}) {
		t.Errorf("locals = %+v, want one i32", out.Code[0].Locals)
	}
	code, err := wasm.DecodeInstructions(out.Code[0].Code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tail := wasm.EncodeInstructions(code[len(code)-6:])
	want := wasm.EncodeInstructions([]wasm.Instruction{
		localGet(0),
		localTee(1),
		{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		localGet(1),
		call(1),
		end(),
	})
	if !bytes.Equal(tail, want) {
		t.Errorf("tail =\n% x\nwant\n% x", tail, want)
	}
	if res.Stats.MemoryGrows != 1 {
		t.Errorf("memory grows = %d, want 1", res.Stats.MemoryGrows)
	}
	if exportIdx(t, out, MemoryExport, wasm.KindMemory) != 0 {
		t.Error("memory export does not name memory 0")
	}
	// the helper never grows memory
	if len(out.Code[1].Locals) != 0 {
		t.Errorf("helper locals = %+v", out.Code[1].Locals)
	}
}

func TestInstrument_Start(t *testing.T) {
	start := uint32(1)
	m := &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Imports: []wasm.Import{{Module: "env", Name: "init", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
		Funcs:   []uint32{0},
		Start:   &start,
		Code:    []wasm.FuncBody{body(call(0), end())},
	}
	res, out := instrument(t, m)

	if out.Start != nil {
		t.Errorf("start section kept: %d", *out.Start)
	}
	if idx := exportIdx(t, out, StartExport, wasm.KindFunc); idx != 3 {
		t.Errorf("canister_start = %d, want 3", idx)
	}
	found := false
	for _, mth := range res.ExportedMethods {
		if mth.Kind == methods.KindSystem && mth.Name == methods.SystemStart {
			found = true
		}
	}
	if !found {
		t.Errorf("canister_start not among methods %v", res.ExportedMethods)
	}
}

func TestInstrument_DataSegment(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{memory(1)},
		Data:     []wasm.DataSegment{{Offset: wasm.ConstI32Expr(10), Init: []byte{1, 2, 3}}},
	}
	res, out := instrument(t, m)

	if len(out.Data) != 0 || out.DataCount != nil {
		t.Errorf("data section kept: %d segments", len(out.Data))
	}
	want := Segments{{Offset: 10, Bytes: []byte{1, 2, 3}}}
	if !reflect.DeepEqual(res.Data, want) {
		t.Errorf("segments = %+v, want %+v", res.Data, want)
	}
}

func TestInstrument_NegativeOffsetIsUnsigned(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{memory(65536)},
		Data:     []wasm.DataSegment{{Offset: wasm.ConstI32Expr(-16), Init: []byte{9}}},
	}
	res, _ := instrument(t, m)
	if res.Data[0].Offset != 0xFFFFFFF0 {
		t.Errorf("offset = %#x, want 0xfffffff0", res.Data[0].Offset)
	}
}

func TestInstrument_StructuralErrors(t *testing.T) {
	globalOffset := []byte{wasm.OpGlobalGet, 0x00, wasm.OpEnd}
	immutableI32 := &wasm.GlobalType{ValType: wasm.ValI32}
	dataCount := uint32(1)

	tests := []struct {
		module *wasm.Module
		name   string
		kind   errors.Kind
	}{
		{
			name: "non-constant offset",
			module: &wasm.Module{
				Imports:  []wasm.Import{{Module: "env", Name: "base", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: immutableI32}}},
				Memories: []wasm.MemoryType{memory(1)},
				Data:     []wasm.DataSegment{{Offset: globalOffset, Init: []byte{1}}},
			},
			kind: errors.KindInvalidSegment,
		},
		{
			name: "passive segment",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{memory(1)},
				Data:     []wasm.DataSegment{{Flags: 1, Init: []byte{1}}},
			},
			kind: errors.KindInvalidSegment,
		},
		{
			name: "segment past initial memory",
			module: &wasm.Module{
				Memories: []wasm.MemoryType{memory(1)},
				Data:     []wasm.DataSegment{{Offset: wasm.ConstI32Expr(65534), Init: []byte{1, 2, 3}}},
			},
			kind: errors.KindOutOfBounds,
		},
		{
			name: "two memories",
			module: &wasm.Module{
				Imports:  []wasm.Import{{Module: "env", Name: "mem", Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}}}}},
				Memories: []wasm.MemoryType{memory(1)},
			},
			kind: errors.KindTooManyMemories,
		},
		{
			name: "memory.init",
			module: &wasm.Module{
				Types:     []wasm.FuncType{{}},
				Funcs:     []uint32{0},
				Memories:  []wasm.MemoryType{memory(1)},
				DataCount: &dataCount,
				Data:      []wasm.DataSegment{{Offset: wasm.ConstI32Expr(0), Init: []byte{1}}},
				Code: []wasm.FuncBody{body(
					i32Const(0), i32Const(0), i32Const(1),
					misc(wasm.MiscMemoryInit, 0, 0),
					end(),
				)},
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "legacy try",
			module: &wasm.Module{
				Types: []wasm.FuncType{{}},
				Funcs: []uint32{0},
				Code:  []wasm.FuncBody{body(voidBlock(wasm.OpTry), end(), end())},
			},
			kind: errors.KindUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(Config{}).Instrument(tt.module.Encode())
			if err == nil {
				t.Fatal("expected error")
			}
			if res != nil {
				t.Error("partial output returned")
			}
			if !errors.IsStructural(err) {
				t.Errorf("not structural: %v", err)
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != tt.kind {
				t.Errorf("kind = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestInstrument_IndexShift(t *testing.T) {
	start := uint32(1)
	m := &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Imports: []wasm.Import{{Module: "env", Name: "f", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
		Funcs:   []uint32{0, 0},
		Tables:  []wasm.TableType{{ElemType: byte(wasm.ValFuncRef), Limits: wasm.Limits{Min: 4}}},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: wasm.ValFuncRef},
			Init: []byte{wasm.OpRefFunc, 0x02, wasm.OpEnd},
		}},
		Exports: []wasm.Export{{Name: "g", Kind: wasm.KindFunc, Idx: 2}},
		Start:   &start,
		Elements: []wasm.Element{
			{Offset: wasm.ConstI32Expr(0), FuncIdxs: []uint32{0, 1}},
			{Flags: 4, Offset: wasm.ConstI32Expr(2), Exprs: [][]byte{{wasm.OpRefFunc, 0x02, wasm.OpEnd}}},
		},
		Code: []wasm.FuncBody{
			body(call(0), call(2), end()),
			body(wasm.Instruction{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: 1}}, wasm.Instruction{Opcode: wasm.OpDrop}, end()),
		},
	}
	_, out := instrument(t, m)

	if idx := exportIdx(t, out, "g", wasm.KindFunc); idx != 4 {
		t.Errorf("export g = %d, want 4", idx)
	}
	if idx := exportIdx(t, out, StartExport, wasm.KindFunc); idx != 3 {
		t.Errorf("canister_start = %d, want 3", idx)
	}
	if !reflect.DeepEqual(out.Elements[0].FuncIdxs, []uint32{2, 3}) {
		t.Errorf("element funcs = %v, want [2 3]", out.Elements[0].FuncIdxs)
	}
	if !bytes.Equal(out.Elements[1].Exprs[0], []byte{wasm.OpRefFunc, 0x04, wasm.OpEnd}) {
		t.Errorf("element expr = % x", out.Elements[1].Exprs[0])
	}
	if !bytes.Equal(out.Globals[0].Init, []byte{wasm.OpRefFunc, 0x04, wasm.OpEnd}) {
		t.Errorf("global init = % x", out.Globals[0].Init)
	}

	var targets []uint32
	for _, b := range out.Code[:2] {
		code, err := wasm.DecodeInstructions(b.Code)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, in := range code {
			switch imm := in.Imm.(type) {
			case wasm.CallImm:
				targets = append(targets, imm.FuncIdx)
			case wasm.RefFuncImm:
				targets = append(targets, imm.FuncIdx)
			}
		}
	}
	// call 0 is the out_of_instructions check at function entry
	want := []uint32{0, 2, 4, 0, 3}
	if !reflect.DeepEqual(targets, want) {
		t.Errorf("call and ref.func targets = %v, want %v", targets, want)
	}
	if exportIdx(t, out, TableExport, wasm.KindTable) != 0 {
		t.Error("table export does not name table 0")
	}
}

func TestInstrument_SecondTableExportKeepsName(t *testing.T) {
	funcref := wasm.TableType{ElemType: byte(wasm.ValFuncRef), Limits: wasm.Limits{Min: 1}}
	_, out := instrument(t, &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Funcs:   []uint32{0},
		Tables:  []wasm.TableType{funcref, funcref},
		Exports: []wasm.Export{{Name: "second", Kind: wasm.KindTable, Idx: 1}},
		Code:    []wasm.FuncBody{body(end())},
	})
	if exportIdx(t, out, "second", wasm.KindTable) != 1 {
		t.Error("export of table 1 should keep its name")
	}
	if exportIdx(t, out, TableExport, wasm.KindTable) != 0 {
		t.Error("table 0 should be exported as table")
	}
}

func TestInstrument_BoundaryExports(t *testing.T) {
	mutI32 := &wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}
	m := &wasm.Module{
		Imports: []wasm.Import{{Module: "env", Name: "g", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: mutI32}}},
		Memories: []wasm.MemoryType{memory(1)},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.ConstI32Expr(1)},
			{Type: wasm.GlobalType{ValType: wasm.ValI32}, Init: wasm.ConstI32Expr(2)},
			{Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true}, Init: wasm.ConstI64Expr(3)},
		},
		Exports: []wasm.Export{
			{Name: "mem", Kind: wasm.KindMemory, Idx: 0},
			{Name: "already", Kind: wasm.KindGlobal, Idx: 3},
		},
	}
	_, out := instrument(t, m)

	if exportIdx(t, out, MemoryExport, wasm.KindMemory) != 0 {
		t.Error("memory export not renamed")
	}
	if _, ok := out.ExportByName("mem"); ok {
		t.Error("old memory export name kept")
	}
	if exportIdx(t, out, MutableGlobalExportPrefix+"0", wasm.KindGlobal) != 0 {
		t.Error("imported mutable global not exported")
	}
	if exportIdx(t, out, MutableGlobalExportPrefix+"1", wasm.KindGlobal) != 1 {
		t.Error("local mutable global not exported")
	}
	for _, name := range []string{MutableGlobalExportPrefix + "2", MutableGlobalExportPrefix + "3"} {
		if _, ok := out.ExportByName(name); ok {
			t.Errorf("unexpected export %q", name)
		}
	}
	if idx := exportIdx(t, out, CounterExport, wasm.KindGlobal); idx != 4 {
		t.Errorf("counter = %d, want 4", idx)
	}

	exported := make(map[uint32]bool)
	for _, exp := range out.Exports {
		if exp.Kind == wasm.KindGlobal {
			exported[exp.Idx] = true
		}
	}
	for idx := 0; idx < out.NumGlobals(); idx++ {
		gt, _ := out.GlobalTypeAt(uint32(idx))
		if gt.Mutable && !exported[uint32(idx)] {
			t.Errorf("mutable global %d has no export", idx)
		}
	}
}

func TestInstrument_ReservedSymbols(t *testing.T) {
	tests := []struct {
		module *wasm.Module
		name   string
	}{
		{
			name: "counter name taken",
			module: &wasm.Module{
				Types:   []wasm.FuncType{{}},
				Funcs:   []uint32{0},
				Exports: []wasm.Export{{Name: CounterExport, Kind: wasm.KindFunc, Idx: 0}},
				Code:    []wasm.FuncBody{body(end())},
			},
		},
		{
			name: "memory rename onto another export",
			module: &wasm.Module{
				Types:    []wasm.FuncType{{}},
				Funcs:    []uint32{0},
				Memories: []wasm.MemoryType{memory(1)},
				Exports: []wasm.Export{
					{Name: "memory", Kind: wasm.KindFunc, Idx: 0},
					{Name: "mem", Kind: wasm.KindMemory, Idx: 0},
				},
				Code: []wasm.FuncBody{body(end())},
			},
		},
		{
			name: "table name taken",
			module: &wasm.Module{
				Types:   []wasm.FuncType{{}},
				Funcs:   []uint32{0},
				Tables:  []wasm.TableType{{ElemType: byte(wasm.ValFuncRef), Limits: wasm.Limits{Min: 1}}},
				Exports: []wasm.Export{{Name: "table", Kind: wasm.KindFunc, Idx: 0}},
				Code:    []wasm.FuncBody{body(end())},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{}).Instrument(tt.module.Encode())
			if !stderrors.Is(err, errors.ErrReservedSymbol) {
				t.Errorf("err = %v, want reserved symbol", err)
			}
		})
	}
}

func TestInstrument_Twice(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{body(end())},
	}
	res, _ := instrument(t, m)
	if !IsInstrumented(res.Binary) {
		t.Fatal("output not detected as instrumented")
	}
	if IsInstrumented(m.Encode()) {
		t.Error("input detected as instrumented")
	}
	_, err := New(Config{}).Instrument(res.Binary)
	if !stderrors.Is(err, errors.ErrReservedSymbol) {
		t.Errorf("err = %v, want reserved symbol", err)
	}
}

func TestInstrument_Deterministic(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0, 0},
		Memories: []wasm.MemoryType{memory(2)},
		Exports: []wasm.Export{
			{Name: "canister_query a", Kind: wasm.KindFunc, Idx: 0},
			{Name: "canister_update b", Kind: wasm.KindFunc, Idx: 1},
		},
		Data: []wasm.DataSegment{{Offset: wasm.ConstI32Expr(0), Init: []byte("hello")}},
		Code: []wasm.FuncBody{body(countdownLoop()...), body(countdownLoop()...)},
	}
	input := m.Encode()
	first, err := New(Config{}).Instrument(input)
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := New(Config{}).Instrument(input)
		if err != nil {
			t.Fatalf("Instrument: %v", err)
		}
		if !bytes.Equal(first.Binary, again.Binary) {
			t.Fatal("output differs between runs")
		}
		if !reflect.DeepEqual(first.ExportedMethods, again.ExportedMethods) {
			t.Fatal("methods differ between runs")
		}
	}
}

func TestInstrument_CompilationCost(t *testing.T) {
	m := &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Funcs:   []uint32{0},
		Globals: []wasm.Global{{Type: wasm.GlobalType{ValType: wasm.ValI32}, Init: wasm.ConstI32Expr(5)}},
		Code:    []wasm.FuncBody{body(i32Const(1), wasm.Instruction{Opcode: wasm.OpDrop}, end())},
	}
	// 3 body instructions + 2 initializer instructions
	tests := []struct {
		perInstr uint64
		want     uint64
	}{
		{0, 0},
		{1, 5},
		{7, 35},
	}
	for _, tt := range tests {
		res, err := New(Config{InstructionCompileCost: tt.perInstr}).Instrument(m.Encode())
		if err != nil {
			t.Fatalf("Instrument: %v", err)
		}
		if res.CompilationCost != tt.want {
			t.Errorf("cost(%d) = %d, want %d", tt.perInstr, res.CompilationCost, tt.want)
		}
		cost, err := New(Config{InstructionCompileCost: tt.perInstr}).CompilationCost(m.Encode())
		if err != nil || cost != tt.want {
			t.Errorf("CompilationCost(%d) = %d, %v", tt.perInstr, cost, err)
		}
	}
}

func TestInstrument_DecodeError(t *testing.T) {
	_, err := New(Config{}).Instrument([]byte("not wasm"))
	if !stderrors.Is(err, errors.ErrDecode) {
		t.Errorf("err = %v, want decode error", err)
	}
	if errors.IsStructural(err) {
		t.Error("decode error reported as structural")
	}
}

func TestPlan_Engine(t *testing.T) {
	m := &wasm.Module{
		Types:   []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
		Imports: []wasm.Import{{Module: "env", Name: "f", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
		Funcs:   []uint32{0},
		Code:    []wasm.FuncBody{body(countdownLoop()...)},
	}
	plans, err := New(Config{}).Plan(m.Encode())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(plans))
	}
	if plans[0].FuncIdx != 1 || plans[0].Instructions != 8 {
		t.Errorf("plan = %+v", plans[0])
	}
	if !reflect.DeepEqual(plans[0].Points, []InjectionPoint{reentrant(0, 0), reentrant(1, 5)}) {
		t.Errorf("points = %v", plans[0].Points)
	}
}

func TestMethodsParserIsPluggable(t *testing.T) {
	m := &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "canister_query q", Kind: wasm.KindFunc, Idx: 0}},
		Code:    []wasm.FuncBody{body(end())},
	}
	none := methods.ParserFunc(func(string) (methods.Method, bool) { return methods.Method{}, false })
	res, err := New(Config{Methods: none}).Instrument(m.Encode())
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if len(res.ExportedMethods) != 0 {
		t.Errorf("methods = %v, want none", res.ExportedMethods)
	}
}
