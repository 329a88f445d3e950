package wasm

import (
	"github.com/wippyai/wasm-instrument/wasm/internal/binary"
)

// sectionEncoder writes the body of one section. It reports false when the
// section is empty and must be omitted.
type sectionEncoder func(m *Module, w *binary.Writer) bool

// encodeOrder lists sections in canonical binary order.
var encodeOrder = []struct {
	encode sectionEncoder
	id     byte
}{
	{encodeTypeSection, SectionType},
	{encodeImportSection, SectionImport},
	{encodeFunctionSection, SectionFunction},
	{encodeTableSection, SectionTable},
	{encodeMemorySection, SectionMemory},
	{encodeTagSection, SectionTag},
	{encodeGlobalSection, SectionGlobal},
	{encodeExportSection, SectionExport},
	{encodeStartSection, SectionStart},
	{encodeElementSection, SectionElement},
	{encodeDataCountSection, SectionDataCount},
	{encodeCodeSection, SectionCode},
	{encodeDataSection, SectionData},
}

// Encode encodes the module to WebAssembly binary format.
// Custom sections are written after all known sections.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	for _, s := range encodeOrder {
		sec := binary.NewWriter()
		if s.encode(m, sec) {
			writeSection(w, s.id, sec.Bytes())
		}
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func encodeTypeSection(m *Module, w *binary.Writer) bool {
	if len(m.Types) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		w.Byte(FuncTypeByte)
		writeValTypes(w, ft.Params)
		writeValTypes(w, ft.Results)
	}
	return true
}

func encodeImportSection(m *Module, w *binary.Writer) bool {
	if len(m.Imports) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		w.Byte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case KindFunc:
			w.WriteU32(imp.Desc.TypeIdx)
		case KindTable:
			writeTableType(w, *imp.Desc.Table)
		case KindMemory:
			writeLimits(w, imp.Desc.Memory.Limits)
		case KindGlobal:
			writeGlobalType(w, *imp.Desc.Global)
		case KindTag:
			writeTagType(w, *imp.Desc.Tag)
		}
	}
	return true
}

func encodeFunctionSection(m *Module, w *binary.Writer) bool {
	if len(m.Funcs) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Funcs)))
	for _, typeIdx := range m.Funcs {
		w.WriteU32(typeIdx)
	}
	return true
}

func encodeTableSection(m *Module, w *binary.Writer) bool {
	if len(m.Tables) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		writeTableType(w, t)
	}
	return true
}

func encodeMemorySection(m *Module, w *binary.Writer) bool {
	if len(m.Memories) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Memories)))
	for _, mem := range m.Memories {
		writeLimits(w, mem.Limits)
	}
	return true
}

func encodeTagSection(m *Module, w *binary.Writer) bool {
	if len(m.Tags) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Tags)))
	for _, tag := range m.Tags {
		writeTagType(w, tag)
	}
	return true
}

func encodeGlobalSection(m *Module, w *binary.Writer) bool {
	if len(m.Globals) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		writeGlobalType(w, g.Type)
		w.WriteBytes(g.Init)
	}
	return true
}

func encodeExportSection(m *Module, w *binary.Writer) bool {
	if len(m.Exports) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Exports)))
	for _, exp := range m.Exports {
		w.WriteName(exp.Name)
		w.Byte(exp.Kind)
		w.WriteU32(exp.Idx)
	}
	return true
}

func encodeStartSection(m *Module, w *binary.Writer) bool {
	if m.Start == nil {
		return false
	}
	w.WriteU32(*m.Start)
	return true
}

func encodeElementSection(m *Module, w *binary.Writer) bool {
	if len(m.Elements) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Elements)))
	for _, elem := range m.Elements {
		w.WriteU32(elem.Flags)

		if elem.Flags&0x02 != 0 && elem.Flags&0x01 == 0 {
			w.WriteU32(elem.TableIdx)
		}
		if elem.Flags&0x01 == 0 {
			w.WriteBytes(elem.Offset)
		}
		if elem.Flags&0x03 != 0 {
			if elem.UsesExprs() {
				w.Byte(byte(elem.Type))
			} else {
				w.Byte(elem.ElemKind)
			}
		}

		if elem.UsesExprs() {
			w.WriteU32(uint32(len(elem.Exprs)))
			for _, expr := range elem.Exprs {
				w.WriteBytes(expr)
			}
		} else {
			w.WriteU32(uint32(len(elem.FuncIdxs)))
			for _, idx := range elem.FuncIdxs {
				w.WriteU32(idx)
			}
		}
	}
	return true
}

func encodeDataCountSection(m *Module, w *binary.Writer) bool {
	if m.DataCount == nil {
		return false
	}
	w.WriteU32(*m.DataCount)
	return true
}

func encodeCodeSection(m *Module, w *binary.Writer) bool {
	if len(m.Code) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Code)))
	for _, body := range m.Code {
		bw := binary.NewWriter()
		bw.WriteU32(uint32(len(body.Locals)))
		for _, local := range body.Locals {
			bw.WriteU32(local.Count)
			bw.Byte(byte(local.ValType))
		}
		bw.WriteBytes(body.Code)
		w.WriteU32(uint32(bw.Len()))
		w.WriteBytes(bw.Bytes())
	}
	return true
}

func encodeDataSection(m *Module, w *binary.Writer) bool {
	if len(m.Data) == 0 {
		return false
	}
	w.WriteU32(uint32(len(m.Data)))
	for _, d := range m.Data {
		w.WriteU32(d.Flags)
		if d.Flags == 2 {
			w.WriteU32(d.MemIdx)
		}
		if !d.IsPassive() {
			w.WriteBytes(d.Offset)
		}
		w.WriteU32(uint32(len(d.Init)))
		w.WriteBytes(d.Init)
	}
	return true
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	w.Byte(flags)

	if l.Memory64 {
		w.WriteU64(l.Min)
		if l.Max != nil {
			w.WriteU64(*l.Max)
		}
		return
	}
	w.WriteU32(uint32(l.Min))
	if l.Max != nil {
		w.WriteU32(uint32(*l.Max))
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(t.ElemType)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func writeTagType(w *binary.Writer, t TagType) {
	w.Byte(t.Attribute)
	w.WriteU32(t.TypeIdx)
}
