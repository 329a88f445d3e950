package wasm

import (
	"bytes"
	"fmt"
	"io"
)

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop, if, and try instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call and return_call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// MiscImm holds the sub-opcode and immediates for 0xFC prefix instructions
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// TableImm holds table index for table.get/table.set
type TableImm struct {
	TableIdx uint32
}

// RefNullImm holds the heap type for ref.null
type RefNullImm struct {
	HeapType int64 // funcref=-16, externref=-17
}

// RefFuncImm holds the function index for ref.func
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds value types for typed select
type SelectTypeImm struct {
	Types []ValType
}

// SIMDImm holds SIMD instruction immediates
type SIMDImm struct {
	MemArg    *MemoryImm
	LaneIdx   *byte
	V128Bytes []byte
	SubOpcode uint32
}

// ThrowImm holds tag index for throw and catch
type ThrowImm struct {
	TagIdx uint32
}

// CatchClause represents a single catch clause in try_table
type CatchClause struct {
	Kind     byte   // 0=catch, 1=catch_ref, 2=catch_all, 3=catch_all_ref
	TagIdx   uint32 // Only for Kind 0, 1
	LabelIdx uint32
}

// TryTableImm holds immediates for try_table instruction
type TryTableImm struct {
	Catches   []CatchClause
	BlockType int32
}

// GetCallTarget returns the call target if this is a direct call instruction
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall || i.Opcode == OpReturnCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// IsBulkMemory reports whether the instruction is a bulk memory or table
// operation whose cost scales with a runtime operand.
func (i Instruction) IsBulkMemory() bool {
	if i.Opcode != OpPrefixMisc {
		return false
	}
	imm, ok := i.Imm.(MiscImm)
	if !ok {
		return false
	}
	switch imm.SubOpcode {
	case MiscMemoryInit, MiscMemoryCopy, MiscMemoryFill, MiscTableInit, MiscTableCopy:
		return true
	}
	return false
}

// hasNoImmediate reports whether op is a single-byte instruction.
func hasNoImmediate(op byte) bool {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect,
		OpRefIsNull, OpCatchAll, OpThrowRef:
		return true
	}
	// Comparison, arithmetic, conversion and sign extension occupy one
	// contiguous block of the opcode space.
	return op >= OpI32Eqz && op <= OpI64Extend32S
}

// DecodeInstructions decodes a sequence of instructions from raw bytes
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := bytes.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)

	for r.Len() > 0 {
		offset := len(code) - r.Len()
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, fmt.Errorf("instruction at offset %d: %w", offset, err)
		}
		instrs = append(instrs, instr)
	}

	return instrs, nil
}

func decodeInstruction(r *bytes.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}
	if hasNoImmediate(op) {
		return instr, nil
	}

	switch op {
	case OpBlock, OpLoop, OpIf, OpTry:
		bt, err := ReadLEB128s(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = BlockImm{Type: bt}

	case OpCatch, OpThrow:
		tagIdx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = ThrowImm{TagIdx: tagIdx}

	case OpRethrow, OpDelegate, OpBr, OpBrIf:
		labelIdx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: labelIdx}

	case OpTryTable:
		imm, err := readTryTable(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpBrTable:
		count, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		if int(count) > r.Len() {
			return instr, fmt.Errorf("br_table with %d labels exceeds body", count)
		}
		labels := make([]uint32, count)
		for i := range labels {
			labels[i], err = ReadLEB128u(r)
			if err != nil {
				return instr, err
			}
		}
		def, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case OpCall, OpReturnCall:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case OpCallIndirect, OpReturnCallIndirect:
		typeIdx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		tableIdx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case OpGlobalGet, OpGlobalSet:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case OpTableGet, OpTableSet:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{TableIdx: idx}

	case OpMemorySize, OpMemoryGrow:
		memIdx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryIdxImm{MemIdx: memIdx}

	case OpI32Const:
		val, err := ReadLEB128s(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: val}

	case OpI64Const:
		val, err := ReadLEB128s64(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: val}

	case OpF32Const:
		val, err := ReadFloat32(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Value: val}

	case OpF64Const:
		val, err := ReadFloat64(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Value: val}

	case OpRefNull:
		heapType, err := ReadLEB128s64(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = RefNullImm{HeapType: heapType}

	case OpRefFunc:
		funcIdx, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = RefFuncImm{FuncIdx: funcIdx}

	case OpSelectType:
		count, err := ReadLEB128u(r)
		if err != nil {
			return instr, err
		}
		if int(count) > r.Len() {
			return instr, fmt.Errorf("select with %d types exceeds body", count)
		}
		types := make([]ValType, count)
		for i := range types {
			t, err := r.ReadByte()
			if err != nil {
				return instr, err
			}
			if ValType(t) == ValRefNull || ValType(t) == ValRef {
				return instr, fmt.Errorf("typed select: %w", ErrUnsupportedFeature)
			}
			types[i] = ValType(t)
		}
		instr.Imm = SelectTypeImm{Types: types}

	case OpPrefixMisc:
		imm, err := decodeMiscImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpPrefixSIMD:
		imm, err := decodeSIMDImmediate(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case OpPrefixGC, OpPrefixAtomic:
		return instr, fmt.Errorf("prefix 0x%02x: %w", op, ErrUnsupportedFeature)

	default:
		if op >= OpI32Load && op <= OpI64Store32 {
			memImm, err := readMemArg(r)
			if err != nil {
				return instr, err
			}
			instr.Imm = memImm
			return instr, nil
		}
		return instr, fmt.Errorf("unknown opcode: 0x%02x", op)
	}

	return instr, nil
}

func readTryTable(r *bytes.Reader) (TryTableImm, error) {
	bt, err := ReadLEB128s(r)
	if err != nil {
		return TryTableImm{}, err
	}
	catchCount, err := ReadLEB128u(r)
	if err != nil {
		return TryTableImm{}, err
	}
	if int(catchCount) > r.Len() {
		return TryTableImm{}, fmt.Errorf("try_table with %d catches exceeds body", catchCount)
	}
	catches := make([]CatchClause, catchCount)
	for i := range catches {
		kind, err := r.ReadByte()
		if err != nil {
			return TryTableImm{}, err
		}
		var tagIdx uint32
		if kind == CatchKindCatch || kind == CatchKindCatchRef {
			tagIdx, err = ReadLEB128u(r)
			if err != nil {
				return TryTableImm{}, err
			}
		}
		labelIdx, err := ReadLEB128u(r)
		if err != nil {
			return TryTableImm{}, err
		}
		catches[i] = CatchClause{Kind: kind, TagIdx: tagIdx, LabelIdx: labelIdx}
	}
	return TryTableImm{BlockType: bt, Catches: catches}, nil
}

// miscOperandCount returns how many LEB128 operands follow a 0xFC sub-opcode.
func miscOperandCount(subOp uint32) (int, bool) {
	switch subOp {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U,
		MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U,
		MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		return 0, true
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop,
		MiscTableGrow, MiscTableSize, MiscTableFill, MiscMemoryDiscard:
		return 1, true
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		return 2, true
	}
	return 0, false
}

func decodeMiscImmediate(r *bytes.Reader) (MiscImm, error) {
	subOp, err := ReadLEB128u(r)
	if err != nil {
		return MiscImm{}, err
	}
	n, ok := miscOperandCount(subOp)
	if !ok {
		return MiscImm{}, fmt.Errorf("unknown 0xFC sub-opcode: 0x%02x", subOp)
	}
	imm := MiscImm{SubOpcode: subOp}
	if n > 0 {
		imm.Operands = make([]uint32, n)
		for i := range imm.Operands {
			imm.Operands[i], err = ReadLEB128u(r)
			if err != nil {
				return MiscImm{}, err
			}
		}
	}
	return imm, nil
}

// EncodeInstructionTo writes a single instruction to the provided buffer.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	buf.WriteByte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case nil:
	case BlockImm:
		WriteLEB128s(buf, imm.Type)
	case ThrowImm:
		WriteLEB128u(buf, imm.TagIdx)
	case BranchImm:
		WriteLEB128u(buf, imm.LabelIdx)
	case TryTableImm:
		WriteLEB128s(buf, imm.BlockType)
		WriteLEB128u(buf, uint32(len(imm.Catches)))
		for _, c := range imm.Catches {
			buf.WriteByte(c.Kind)
			if c.Kind == CatchKindCatch || c.Kind == CatchKindCatchRef {
				WriteLEB128u(buf, c.TagIdx)
			}
			WriteLEB128u(buf, c.LabelIdx)
		}
	case BrTableImm:
		WriteLEB128u(buf, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			WriteLEB128u(buf, l)
		}
		WriteLEB128u(buf, imm.Default)
	case CallImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case CallIndirectImm:
		WriteLEB128u(buf, imm.TypeIdx)
		WriteLEB128u(buf, imm.TableIdx)
	case LocalImm:
		WriteLEB128u(buf, imm.LocalIdx)
	case GlobalImm:
		WriteLEB128u(buf, imm.GlobalIdx)
	case TableImm:
		WriteLEB128u(buf, imm.TableIdx)
	case MemoryImm:
		writeMemArg(buf, imm)
	case MemoryIdxImm:
		WriteLEB128u(buf, imm.MemIdx)
	case I32Imm:
		WriteLEB128s(buf, imm.Value)
	case I64Imm:
		WriteLEB128s64(buf, imm.Value)
	case F32Imm:
		WriteFloat32(buf, imm.Value)
	case F64Imm:
		WriteFloat64(buf, imm.Value)
	case RefNullImm:
		WriteLEB128s64(buf, imm.HeapType)
	case RefFuncImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case SelectTypeImm:
		WriteLEB128u(buf, uint32(len(imm.Types)))
		for _, t := range imm.Types {
			buf.WriteByte(byte(t))
		}
	case MiscImm:
		WriteLEB128u(buf, imm.SubOpcode)
		for _, op := range imm.Operands {
			WriteLEB128u(buf, op)
		}
	case SIMDImm:
		encodeSIMDImmediate(buf, imm)
	default:
		panic(fmt.Sprintf("wasm: opcode 0x%02x has unexpected immediate %T", instr.Opcode, imm))
	}
}

// EncodeInstructionsTo writes multiple instructions to the provided buffer.
func EncodeInstructionsTo(buf *bytes.Buffer, instrs []Instruction) {
	for i := range instrs {
		EncodeInstructionTo(buf, &instrs[i])
	}
}

// EncodeInstructions encodes instructions to bytes
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	buf.Grow(len(instrs) * 3)
	EncodeInstructionsTo(&buf, instrs)
	return buf.Bytes()
}

func decodeSIMDImmediate(r *bytes.Reader) (SIMDImm, error) {
	subOp, err := ReadLEB128u(r)
	if err != nil {
		return SIMDImm{}, err
	}

	imm := SIMDImm{SubOpcode: subOp}

	switch {
	case subOp <= SimdV128Load64Splat || subOp == SimdV128Store,
		subOp == SimdV128Load32Zero || subOp == SimdV128Load64Zero:
		memArg, err := readMemArg(r)
		if err != nil {
			return SIMDImm{}, err
		}
		imm.MemArg = &memArg

	case subOp == SimdV128Const || subOp == SimdI8x16Shuffle:
		raw := make([]byte, 16)
		if _, err := io.ReadFull(r, raw); err != nil {
			return SIMDImm{}, err
		}
		imm.V128Bytes = raw

	case subOp >= SimdI8x16ExtractLaneS && subOp <= SimdF64x2ReplaceLane:
		b, err := r.ReadByte()
		if err != nil {
			return SIMDImm{}, err
		}
		imm.LaneIdx = &b

	case subOp >= SimdV128Load8Lane && subOp <= SimdV128Store64Lane:
		memArg, err := readMemArg(r)
		if err != nil {
			return SIMDImm{}, err
		}
		imm.MemArg = &memArg
		b, err := r.ReadByte()
		if err != nil {
			return SIMDImm{}, err
		}
		imm.LaneIdx = &b
	}

	return imm, nil
}

func encodeSIMDImmediate(buf *bytes.Buffer, imm SIMDImm) {
	WriteLEB128u(buf, imm.SubOpcode)

	if imm.MemArg != nil {
		writeMemArg(buf, *imm.MemArg)
	}
	if len(imm.V128Bytes) > 0 {
		buf.Write(imm.V128Bytes)
	}
	if imm.LaneIdx != nil {
		buf.WriteByte(*imm.LaneIdx)
	}
}

// Multi-memory memarg bit flag
const memArgMultiMemBit = 0x40

// readMemArg reads a memarg with multi-memory support.
// If bit 6 of align is set, a separate memidx LEB128 follows.
func readMemArg(r *bytes.Reader) (MemoryImm, error) {
	alignRaw, err := ReadLEB128u(r)
	if err != nil {
		return MemoryImm{}, err
	}

	var memIdx uint32
	if alignRaw&memArgMultiMemBit != 0 {
		memIdx, err = ReadLEB128u(r)
		if err != nil {
			return MemoryImm{}, err
		}
	}

	offset, err := ReadLEB128u64(r)
	if err != nil {
		return MemoryImm{}, err
	}

	return MemoryImm{
		Align:  alignRaw &^ uint32(memArgMultiMemBit),
		Offset: offset,
		MemIdx: memIdx,
	}, nil
}

// writeMemArg writes a memarg with multi-memory support.
func writeMemArg(buf *bytes.Buffer, imm MemoryImm) {
	alignRaw := imm.Align
	if imm.MemIdx != 0 {
		alignRaw |= memArgMultiMemBit
	}
	WriteLEB128u(buf, alignRaw)
	if imm.MemIdx != 0 {
		WriteLEB128u(buf, imm.MemIdx)
	}
	WriteLEB128u64(buf, imm.Offset)
}
