package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-instrument/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")

	// ErrUnsupportedFeature marks well-formed input that uses a proposal the
	// codec does not carry (GC, threads, typed function references).
	ErrUnsupportedFeature = errors.New("unsupported wasm feature")
)

// ParseModule parses a WebAssembly binary module
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(bytes.NewReader(data))

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}

	// Canonical order differs from section IDs: Tag(13) sits between Memory
	// and Global, DataCount(12) precedes Code.
	var lastSectionOrder int

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}

		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		parse, name := sectionParser(sectionID)
		if parse == nil {
			return nil, fmt.Errorf("unknown section ID: 0x%02x", sectionID)
		}
		sr := binary.NewReader(bytes.NewReader(sectionData))
		if err := parse(sr, m); err != nil {
			return nil, fmt.Errorf("%s section: %w", name, err)
		}
		if sectionID != SectionCustom && sr.Remaining() > 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", name, sr.Remaining())
		}
	}

	return m, nil
}

func sectionParser(id byte) (func(*binary.Reader, *Module) error, string) {
	switch id {
	case SectionCustom:
		return parseCustomSection, "custom"
	case SectionType:
		return parseTypeSection, "type"
	case SectionImport:
		return parseImportSection, "import"
	case SectionFunction:
		return parseFunctionSection, "function"
	case SectionTable:
		return parseTableSection, "table"
	case SectionMemory:
		return parseMemorySection, "memory"
	case SectionGlobal:
		return parseGlobalSection, "global"
	case SectionExport:
		return parseExportSection, "export"
	case SectionStart:
		return parseStartSection, "start"
	case SectionElement:
		return parseElementSection, "element"
	case SectionCode:
		return parseCodeSection, "code"
	case SectionData:
		return parseDataSection, "data"
	case SectionDataCount:
		return parseDataCountSection, "data count"
	case SectionTag:
		return parseTagSection, "tag"
	}
	return nil, ""
}

// sectionOrder returns the canonical ordering for a section ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 100
	}
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: rest,
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read type form at index %d: %w", i, err)
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: form 0x%02x: %w", i, form, ErrUnsupportedFeature)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}

		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
			if err != nil {
				return err
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &table
		case KindMemory:
			memory, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &global
		case KindTag:
			tag, err := readTagType(r)
			if err != nil {
				return err
			}
			imp.Desc.Tag = &tag
		default:
			return fmt.Errorf("unknown import kind: %d", kind)
		}

		m.Imports[i] = imp
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		m.Funcs[i], err = r.ReadU32()
		if err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, count)
	for i := uint32(0); i < count; i++ {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Memories = make([]MemoryType, count)
	for i := uint32(0); i < count; i++ {
		m.Memories[i], err = readMemoryType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Globals = make([]Global, count)
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: globalType, Init: init}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Exports = make([]Export, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindTag {
			return fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Elements = make([]Element, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return fmt.Errorf("invalid element segment flags: %d", flags)
		}

		elem := Element{Flags: flags}

		// Bit 0: passive/declarative (no table index or offset)
		// Bit 1: explicit table index
		// Bit 2: expressions instead of function indices
		hasTableIdx := flags&0x02 != 0 && flags&0x01 == 0
		hasOffset := flags&0x01 == 0
		usesExprs := elem.UsesExprs()

		if hasTableIdx {
			elem.TableIdx, err = r.ReadU32()
			if err != nil {
				return err
			}
		}

		if hasOffset {
			elem.Offset, err = readInitExpr(r)
			if err != nil {
				return err
			}
		}

		if flags&0x03 != 0 {
			if usesExprs {
				t, err := readRefType(r)
				if err != nil {
					return err
				}
				elem.Type = ValType(t)
			} else {
				elem.ElemKind, err = r.ReadByte()
				if err != nil {
					return err
				}
			}
		}

		vecCount, err := r.ReadU32()
		if err != nil {
			return err
		}

		if usesExprs {
			elem.Exprs = make([][]byte, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				elem.Exprs[j], err = readInitExpr(r)
				if err != nil {
					return err
				}
			}
		} else {
			elem.FuncIdxs = make([]uint32, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				elem.FuncIdxs[j], err = r.ReadU32()
				if err != nil {
					return err
				}
			}
		}

		m.Elements[i] = elem
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Code = make([]FuncBody, count)
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyData, err := r.ReadBytes(int(bodySize))
		if err != nil {
			return err
		}

		br := binary.NewReader(bytes.NewReader(bodyData))

		localCount, err := br.ReadU32()
		if err != nil {
			return err
		}
		var locals []LocalEntry
		for j := uint32(0); j < localCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return err
			}
			t, err := readValType(br)
			if err != nil {
				return err
			}
			locals = append(locals, LocalEntry{Count: n, ValType: t})
		}

		code, err := br.ReadRemaining()
		if err != nil {
			return err
		}

		m.Code[i] = FuncBody{Locals: locals, Code: code}
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Data = make([]DataSegment, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 2 {
			return fmt.Errorf("invalid data segment flags: %d", flags)
		}

		seg := DataSegment{Flags: flags}

		if flags == 2 {
			seg.MemIdx, err = r.ReadU32()
			if err != nil {
				return err
			}
		}

		if flags != 1 {
			seg.Offset, err = readInitExpr(r)
			if err != nil {
				return err
			}
		}

		initLen, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg.Init, err = r.ReadBytes(int(initLen))
		if err != nil {
			return err
		}

		m.Data[i] = seg
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}

func parseTagSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Tags = make([]TagType, count)
	for i := uint32(0); i < count; i++ {
		m.Tags[i], err = readTagType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]ValType, count)
	for i := range types {
		types[i], err = readValType(r)
		if err != nil {
			return nil, err
		}
	}
	return types, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return ValType(b), nil
	case ValRefNull, ValRef:
		return 0, fmt.Errorf("typed reference 0x%02x: %w", b, ErrUnsupportedFeature)
	default:
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags > LimitsHasMax|LimitsShared|LimitsMemory64 {
		return Limits{}, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}

	memory64 := flags&LimitsMemory64 != 0
	l := Limits{
		Shared:   flags&LimitsShared != 0,
		Memory64: memory64,
	}

	if memory64 {
		l.Min, err = r.ReadU64()
		if err != nil {
			return Limits{}, err
		}
		if flags&LimitsHasMax != 0 {
			maxVal, err := r.ReadU64()
			if err != nil {
				return Limits{}, err
			}
			l.Max = &maxVal
		}
	} else {
		minVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		l.Min = uint64(minVal)
		if flags&LimitsHasMax != 0 {
			maxVal, err := r.ReadU32()
			if err != nil {
				return Limits{}, err
			}
			max64 := uint64(maxVal)
			l.Max = &max64
		}
	}

	if l.Max != nil && l.Min > *l.Max {
		return Limits{}, fmt.Errorf("limits min (%d) exceeds max (%d)", l.Min, *l.Max)
	}

	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elemType, err := readRefType(r)
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elemType, Limits: limits}, nil
}

func readRefType(r *binary.Reader) (byte, error) {
	t, err := readValType(r)
	if err != nil {
		return 0, err
	}
	if t != ValFuncRef && t != ValExtern {
		return 0, fmt.Errorf("expected reference type, got %s", t)
	}
	return byte(t), nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	valType, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability 0x%02x", mut)
	}
	return GlobalType{ValType: valType, Mutable: mut == 1}, nil
}

func readTagType(r *binary.Reader) (TagType, error) {
	attribute, err := r.ReadByte()
	if err != nil {
		return TagType{}, err
	}
	typeIdx, err := r.ReadU32()
	if err != nil {
		return TagType{}, err
	}
	return TagType{Attribute: attribute, TypeIdx: typeIdx}, nil
}

func readInitExpr(r *binary.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if b == OpEnd {
			break
		}
		if err := copyInitExprImmediate(r, &buf, b); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func copyInitExprImmediate(r *binary.Reader, buf *bytes.Buffer, opcode byte) error {
	switch opcode {
	case OpI32Const, OpI64Const, OpGlobalGet, OpRefNull, OpRefFunc:
		return copyLEB128(r, buf)
	case OpF32Const:
		return copyBytes(r, buf, 4)
	case OpF64Const:
		return copyBytes(r, buf, 8)
	// Extended-const proposal: arithmetic in init expressions
	case OpI32Add, OpI32Sub, OpI32Mul, OpI64Add, OpI64Sub, OpI64Mul:
		return nil
	case OpPrefixSIMD:
		subOp, err := r.ReadU32()
		if err != nil {
			return err
		}
		WriteLEB128u(buf, subOp)
		if subOp != SimdV128Const {
			return fmt.Errorf("simd op 0x%02x not allowed in constant expression", subOp)
		}
		return copyBytes(r, buf, 16)
	case OpPrefixGC:
		return fmt.Errorf("constant expression: %w", ErrUnsupportedFeature)
	}
	return fmt.Errorf("opcode 0x%02x not allowed in constant expression", opcode)
}

func copyLEB128(r *binary.Reader, buf *bytes.Buffer) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		if b&0x80 == 0 {
			break
		}
	}
	return nil
}

func copyBytes(r *binary.Reader, buf *bytes.Buffer, n int) error {
	data, err := r.ReadBytes(n)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
