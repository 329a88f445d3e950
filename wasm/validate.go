package wasm

import "fmt"

// indexSpace holds the size of every index space of a module, imports
// included.
type indexSpace struct {
	types    uint32
	funcs    uint32
	tables   uint32
	memories uint32
	globals  uint32
	tags     uint32
}

func (m *Module) indexSpace() indexSpace {
	return indexSpace{
		types:    uint32(len(m.Types)),
		funcs:    uint32(m.NumFuncs()),
		tables:   uint32(m.NumTables()),
		memories: uint32(m.NumMemories()),
		globals:  uint32(m.NumGlobals()),
		tags:     uint32(m.NumImportedTags() + len(m.Tags)),
	}
}

// size returns the index space an export of kind refers into.
func (s indexSpace) size(kind byte) (uint32, string) {
	switch kind {
	case KindFunc:
		return s.funcs, "function"
	case KindTable:
		return s.tables, "table"
	case KindMemory:
		return s.memories, "memory"
	case KindGlobal:
		return s.globals, "global"
	case KindTag:
		return s.tags, "tag"
	}
	return 0, fmt.Sprintf("kind 0x%02x", kind)
}

// Validate checks the module for structural validity: every index is in
// range, export names are unique, constant expressions only reference
// items that exist before them, limits are well-formed, section counts
// agree and the start function has type [] -> []. Function bodies are not
// type-checked.
func (m *Module) Validate() error {
	s := m.indexSpace()
	checks := []func(indexSpace) error{
		m.checkTypeRefs,
		m.checkExports,
		m.checkSegments,
		m.checkConstExprs,
		m.checkStart,
		m.checkCounts,
		m.checkLimits,
	}
	for _, check := range checks {
		if err := check(s); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) checkTypeRefs(s indexSpace) error {
	for i, imp := range m.Imports {
		switch {
		case imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= s.types:
			return fmt.Errorf("import %d (%s.%s): type index %d out of range", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
		case imp.Desc.Kind == KindTag && imp.Desc.Tag != nil && imp.Desc.Tag.TypeIdx >= s.types:
			return fmt.Errorf("import %d (%s.%s): tag type index %d out of range", i, imp.Module, imp.Name, imp.Desc.Tag.TypeIdx)
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= s.types {
			return fmt.Errorf("function %d: type index %d out of range", m.NumImportedFuncs()+i, typeIdx)
		}
	}
	for i, tag := range m.Tags {
		if tag.TypeIdx >= s.types {
			return fmt.Errorf("tag %d: type index %d out of range", i, tag.TypeIdx)
		}
	}
	return nil
}

func (m *Module) checkExports(s indexSpace) error {
	seen := make(map[string]int, len(m.Exports))
	for i, exp := range m.Exports {
		if prev, ok := seen[exp.Name]; ok {
			return fmt.Errorf("export %d: name %q already used by export %d", i, exp.Name, prev)
		}
		seen[exp.Name] = i
		if n, what := s.size(exp.Kind); exp.Idx >= n {
			return fmt.Errorf("export %d (%s): %s index %d out of range", i, exp.Name, what, exp.Idx)
		}
	}
	return nil
}

func (m *Module) checkSegments(s indexSpace) error {
	for i, el := range m.Elements {
		// odd flags are passive or declarative and name no table
		if el.Flags&0x01 == 0 && el.TableIdx >= s.tables {
			return fmt.Errorf("element %d: table index %d out of range", i, el.TableIdx)
		}
		for j, funcIdx := range el.FuncIdxs {
			if funcIdx >= s.funcs {
				return fmt.Errorf("element %d, entry %d: function index %d out of range", i, j, funcIdx)
			}
		}
	}
	for i, d := range m.Data {
		if !d.IsPassive() && d.MemIdx >= s.memories {
			return fmt.Errorf("data %d: memory index %d out of range", i, d.MemIdx)
		}
	}
	return nil
}

// checkConstExprs bounds global.get and ref.func in initializers and
// segment offsets. A global initializer may only read globals declared
// before it.
func (m *Module) checkConstExprs(s indexSpace) error {
	imported := uint32(m.NumImportedGlobals())
	for i, g := range m.Globals {
		if err := checkConstExpr(g.Init, imported+uint32(i), s.funcs); err != nil {
			return fmt.Errorf("global %d initializer: %w", imported+uint32(i), err)
		}
	}
	for i, el := range m.Elements {
		if err := checkConstExpr(el.Offset, s.globals, s.funcs); err != nil {
			return fmt.Errorf("element %d offset: %w", i, err)
		}
		for j, expr := range el.Exprs {
			if err := checkConstExpr(expr, s.globals, s.funcs); err != nil {
				return fmt.Errorf("element %d, entry %d: %w", i, j, err)
			}
		}
	}
	for i, d := range m.Data {
		if err := checkConstExpr(d.Offset, s.globals, s.funcs); err != nil {
			return fmt.Errorf("data %d offset: %w", i, err)
		}
	}
	return nil
}

func checkConstExpr(expr []byte, globals, funcs uint32) error {
	if len(expr) == 0 {
		return nil
	}
	instrs, err := DecodeInstructions(expr)
	if err != nil {
		return err
	}
	for _, in := range instrs {
		switch imm := in.Imm.(type) {
		case GlobalImm:
			if in.Opcode == OpGlobalGet && imm.GlobalIdx >= globals {
				return fmt.Errorf("global.get %d out of range", imm.GlobalIdx)
			}
		case RefFuncImm:
			if imm.FuncIdx >= funcs {
				return fmt.Errorf("ref.func %d out of range", imm.FuncIdx)
			}
		}
	}
	return nil
}

func (m *Module) checkStart(s indexSpace) error {
	if m.Start == nil {
		return nil
	}
	if *m.Start >= s.funcs {
		return fmt.Errorf("start function %d out of range", *m.Start)
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function %d has no type", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function %d must have type [] -> [], got %d params and %d results",
			*m.Start, len(ft.Params), len(ft.Results))
	}
	return nil
}

func (m *Module) checkCounts(indexSpace) error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data count %d disagrees with %d data segments", *m.DataCount, len(m.Data))
	}
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("%d code entries for %d functions", len(m.Code), len(m.Funcs))
	}
	return nil
}

func (m *Module) checkLimits(indexSpace) error {
	for i, imp := range m.Imports {
		switch {
		case imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil:
			if err := checkMemoryLimits(imp.Desc.Memory.Limits); err != nil {
				return fmt.Errorf("import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		case imp.Desc.Kind == KindTable && imp.Desc.Table != nil:
			if err := checkMinMax(imp.Desc.Table.Limits); err != nil {
				return fmt.Errorf("import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		}
	}
	for i, mem := range m.Memories {
		if err := checkMemoryLimits(mem.Limits); err != nil {
			return fmt.Errorf("memory %d: %w", m.NumImportedMemories()+i, err)
		}
	}
	for i, t := range m.Tables {
		if err := checkMinMax(t.Limits); err != nil {
			return fmt.Errorf("table %d: %w", m.NumImportedTables()+i, err)
		}
	}
	return nil
}

func checkMemoryLimits(l Limits) error {
	maxPages := MemoryMaxPages32
	if l.Memory64 {
		maxPages = MemoryMaxPages64
	}
	if l.Shared && l.Max == nil {
		return fmt.Errorf("shared memory needs a maximum")
	}
	if l.Min > maxPages {
		return fmt.Errorf("min %d pages exceeds %d", l.Min, maxPages)
	}
	if l.Max != nil && *l.Max > maxPages {
		return fmt.Errorf("max %d pages exceeds %d", *l.Max, maxPages)
	}
	return checkMinMax(l)
}

func checkMinMax(l Limits) error {
	if l.Max != nil && *l.Max < l.Min {
		return fmt.Errorf("max %d below min %d", *l.Max, l.Min)
	}
	return nil
}
