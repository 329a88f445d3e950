package wasm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wippyai/wasm-instrument/wasm"
)

func TestInstructionRoundTrip(t *testing.T) {
	lane := byte(3)
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeI32}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2, Offset: 1 << 20}},
		{Opcode: wasm.OpI64Store, Imm: wasm.MemoryImm{Align: 3, MemIdx: 1}},
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 1}},
		{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 1}, Default: 2}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 300}},
		{Opcode: wasm.OpReturnCall, Imm: wasm.CallImm{FuncIdx: 1}},
		{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 2, TableIdx: 0}},
		{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 4}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -5}},
		{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: 1 << 40}},
		{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: 1.5}},
		{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: -2.25}},
		{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: -16}},
		{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: 9}},
		{Opcode: wasm.OpSelectType, Imm: wasm.SelectTypeImm{Types: []wasm.ValType{wasm.ValI64}}},
		{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryCopy, Operands: []uint32{0, 0}}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscI32TruncSatF32S}},
		{Opcode: wasm.OpPrefixSIMD, Imm: wasm.SIMDImm{SubOpcode: wasm.SimdV128Const, V128Bytes: bytes.Repeat([]byte{0xab}, 16)}},
		{Opcode: wasm.OpPrefixSIMD, Imm: wasm.SIMDImm{SubOpcode: wasm.SimdI32x4ExtractLane, LaneIdx: &lane}},
		{Opcode: wasm.OpTryTable, Imm: wasm.TryTableImm{BlockType: wasm.BlockTypeVoid, Catches: []wasm.CatchClause{
			{Kind: wasm.CatchKindCatch, TagIdx: 0, LabelIdx: 1},
			{Kind: wasm.CatchKindCatchAll, LabelIdx: 0},
		}}},
		{Opcode: wasm.OpI32Add},
		{Opcode: wasm.OpI64Extend32S},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if len(decoded) != len(instrs) {
		t.Fatalf("got %d instructions, want %d", len(decoded), len(instrs))
	}
	for i := range instrs {
		if decoded[i].Opcode != instrs[i].Opcode {
			t.Errorf("instruction %d: opcode 0x%02x, want 0x%02x", i, decoded[i].Opcode, instrs[i].Opcode)
		}
	}
	if !bytes.Equal(wasm.EncodeInstructions(decoded), encoded) {
		t.Error("re-encoding decoded instructions changed the bytes")
	}
}

func TestDecodeInstructionsRejectsUnsupportedPrefixes(t *testing.T) {
	for _, code := range [][]byte{
		{wasm.OpPrefixGC, 0x00, 0x00},
		{wasm.OpPrefixAtomic, 0x03, 0x00},
	} {
		if _, err := wasm.DecodeInstructions(code); !errors.Is(err, wasm.ErrUnsupportedFeature) {
			t.Errorf("%v: expected ErrUnsupportedFeature, got %v", code, err)
		}
	}

	if _, err := wasm.DecodeInstructions([]byte{0xc5}); err == nil {
		t.Error("expected error for unknown opcode")
	}
	if _, err := wasm.DecodeInstructions([]byte{wasm.OpCall}); err == nil {
		t.Error("expected error for truncated immediate")
	}
}

func TestInstructionPredicates(t *testing.T) {
	call := wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 5}}
	if idx, ok := call.GetCallTarget(); !ok || idx != 5 {
		t.Errorf("GetCallTarget: got %d, %v", idx, ok)
	}

	bulk := []uint32{wasm.MiscMemoryInit, wasm.MiscMemoryCopy, wasm.MiscMemoryFill, wasm.MiscTableInit, wasm.MiscTableCopy}
	for _, sub := range bulk {
		instr := wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: sub}}
		if !instr.IsBulkMemory() {
			t.Errorf("sub-opcode 0x%02x should be bulk memory", sub)
		}
	}
	for _, sub := range []uint32{wasm.MiscDataDrop, wasm.MiscTableGrow, wasm.MiscI64TruncSatF64U} {
		instr := wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: sub}}
		if instr.IsBulkMemory() {
			t.Errorf("sub-opcode 0x%02x should not be bulk memory", sub)
		}
	}
}
