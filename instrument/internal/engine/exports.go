package engine

import (
	"fmt"
	"strconv"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/wasm"
)

// Export names owned by the instrumentation.
const (
	TableExport               = "table"
	MemoryExport              = "memory"
	CounterExport             = "canister counter_instructions"
	StartExport               = "canister_start"
	MutableGlobalExportPrefix = "__persistent_mutable_global_"
)

// addExport appends an export, rejecting a name already in use.
func addExport(m *wasm.Module, name string, kind byte, idx uint32) error {
	if _, exists := m.ExportByName(name); exists {
		return errors.ReservedSymbol(name)
	}
	m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
	return nil
}

// exportBoundaries makes table 0, memory 0 and every mutable global
// reachable by name from the host.
func exportBoundaries(m *wasm.Module) error {
	if err := exportIndexZero(m, wasm.KindTable, TableExport, m.NumTables()); err != nil {
		return err
	}
	if err := exportIndexZero(m, wasm.KindMemory, MemoryExport, m.NumMemories()); err != nil {
		return err
	}
	return exportMutableGlobals(m)
}

// exportIndexZero renames the first export of entity 0 to name, or adds one
// when the entity exists but is not exported.
func exportIndexZero(m *wasm.Module, kind byte, name string, count int) error {
	if count == 0 {
		return nil
	}
	for i := range m.Exports {
		exp := &m.Exports[i]
		if exp.Kind != kind || exp.Idx != 0 {
			continue
		}
		if exp.Name == name {
			return nil
		}
		if _, taken := m.ExportByName(name); taken {
			return errors.ReservedSymbol(name)
		}
		exp.Name = name
		return nil
	}
	return addExport(m, name, kind, 0)
}

// exportMutableGlobals exports every mutable global of the index space,
// imported ones included, that has no export yet.
func exportMutableGlobals(m *wasm.Module) error {
	exported := make([]bool, m.NumGlobals())
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindGlobal && int(exp.Idx) < len(exported) {
			exported[exp.Idx] = true
		}
	}
	for idx := range exported {
		gt, ok := m.GlobalTypeAt(uint32(idx))
		if !ok || !gt.Mutable || exported[idx] {
			continue
		}
		name := MutableGlobalExportPrefix + strconv.Itoa(idx)
		if err := addExport(m, name, wasm.KindGlobal, uint32(idx)); err != nil {
			return err
		}
	}
	return nil
}

// exportNames lists export names in section order.
func exportNames(m *wasm.Module) []string {
	names := make([]string, len(m.Exports))
	for i, exp := range m.Exports {
		names[i] = exp.Name
	}
	return names
}

func elemPath(seg, entry int) string {
	return fmt.Sprintf("elem[%d].expr[%d]", seg, entry)
}

func globalPath(idx int) string {
	return fmt.Sprintf("global[%d]", idx)
}

func funcPath(idx int) string {
	return fmt.Sprintf("function[%d]", idx)
}
