package engine

import (
	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/wasm"
)

// Segment is an active data segment lifted out of the module.
type Segment struct {
	Bytes  []byte
	Offset uint64
}

// End returns the first byte past the segment.
func (s Segment) End() uint64 {
	return s.Offset + uint64(len(s.Bytes))
}

// Segments preserves the order of the original data section.
type Segments []Segment

// Validate checks that every segment fits in initialPages of memory.
func (s Segments) Validate(initialPages uint64) error {
	size := initialPages * wasm.PageSize
	for i, seg := range s {
		if seg.End() > size {
			return errors.SegmentOutOfBounds(i, seg.Offset, uint64(len(seg.Bytes)), size)
		}
	}
	return nil
}

// TotalBytes sums the payload of all segments.
func (s Segments) TotalBytes() uint64 {
	var n uint64
	for _, seg := range s {
		n += uint64(len(seg.Bytes))
	}
	return n
}

// extractData removes the data section from m and returns its segments.
// The module must have at most one memory and only active segments with an
// i32.const offset. Bodies referencing segments by index are rejected since
// the section no longer exists afterwards.
func extractData(m *wasm.Module, bodies [][]wasm.Instruction) (Segments, error) {
	if n := m.NumMemories(); n > 1 {
		return nil, errors.TooManyMemories(n)
	}
	pages, err := initialPages(m)
	if err != nil {
		return nil, err
	}

	segs := make(Segments, 0, len(m.Data))
	for i := range m.Data {
		d := &m.Data[i]
		if d.IsPassive() {
			return nil, errors.InvalidSegment(i, "passive segment")
		}
		k, ok := wasm.ConstI32(d.Offset)
		if !ok {
			return nil, errors.InvalidSegment(i, "offset is not an i32.const expression")
		}
		segs = append(segs, Segment{Offset: uint64(uint32(k)), Bytes: d.Init})
	}

	for i, code := range bodies {
		for _, instr := range code {
			if usesDataIndex(instr) {
				return nil, errors.New(errors.PhaseInstrument, errors.KindUnsupported).
					Path(funcPath(m.NumImportedFuncs() + i)).
					Detail("memory.init and data.drop need the data section").
					Build()
			}
		}
	}

	if err := segs.Validate(pages); err != nil {
		return nil, err
	}
	m.Data = nil
	m.DataCount = nil
	return segs, nil
}

func usesDataIndex(instr wasm.Instruction) bool {
	if instr.Opcode != wasm.OpPrefixMisc {
		return false
	}
	imm, ok := instr.Imm.(wasm.MiscImm)
	return ok && (imm.SubOpcode == wasm.MiscMemoryInit || imm.SubOpcode == wasm.MiscDataDrop)
}

// initialPages returns the declared minimum of memory 0, or 0 without memory.
func initialPages(m *wasm.Module) (uint64, error) {
	var limits *wasm.Limits
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind == wasm.KindMemory && m.Imports[i].Desc.Memory != nil {
			limits = &m.Imports[i].Desc.Memory.Limits
			break
		}
	}
	if limits == nil && len(m.Memories) > 0 {
		limits = &m.Memories[0].Limits
	}
	if limits == nil {
		return 0, nil
	}
	if limits.Memory64 {
		return 0, errors.Unsupported(errors.PhaseInstrument, "64-bit memory")
	}
	return limits.Min, nil
}
