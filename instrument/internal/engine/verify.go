package engine

import (
	"fmt"

	"github.com/wippyai/wasm-instrument/wasm"
)

// verifyOutput checks the host contract of an instrumented module on top of
// wasm.Module.Validate: the two host imports lead the function index space,
// the counter export is a mutable i64, canister_start takes and returns
// nothing, every mutable global is exported and no data remains.
func verifyOutput(m *wasm.Module) error {
	if err := m.Validate(); err != nil {
		return err
	}

	hostTypes := []wasm.FuncType{
		{},
		{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
	}
	hostNames := []string{OutOfInstructionsImport, UpdateAvailableMemoryName}
	if len(m.Imports) < len(hostNames) {
		return fmt.Errorf("missing host imports")
	}
	for i, name := range hostNames {
		imp := m.Imports[i]
		if imp.Module != HostModule || imp.Name != name || imp.Desc.Kind != wasm.KindFunc {
			return fmt.Errorf("import %d is %s.%s, want function %s.%s", i, imp.Module, imp.Name, HostModule, name)
		}
		if ft := m.TypeAt(imp.Desc.TypeIdx); ft == nil || !sameSignature(*ft, hostTypes[i]) {
			return fmt.Errorf("import %s.%s has the wrong type", HostModule, name)
		}
	}

	counter, ok := m.ExportByName(CounterExport)
	if !ok || counter.Kind != wasm.KindGlobal {
		return fmt.Errorf("%q is not an exported global", CounterExport)
	}
	if gt, ok := m.GlobalTypeAt(counter.Idx); !ok || gt.ValType != wasm.ValI64 || !gt.Mutable {
		return fmt.Errorf("%q must be a mutable i64", CounterExport)
	}

	if start, ok := m.ExportByName(StartExport); ok {
		if start.Kind != wasm.KindFunc {
			return fmt.Errorf("%q is not a function", StartExport)
		}
		if ft := m.GetFuncType(start.Idx); ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("%q must have type [] -> []", StartExport)
		}
	}
	if m.Start != nil {
		return fmt.Errorf("start section left in place")
	}

	exported := make(map[uint32]bool)
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindGlobal {
			exported[exp.Idx] = true
		}
	}
	for idx := uint32(0); idx < uint32(m.NumGlobals()); idx++ {
		if gt, ok := m.GlobalTypeAt(idx); ok && gt.Mutable && !exported[idx] {
			return fmt.Errorf("mutable global %d is not exported", idx)
		}
	}

	if len(m.Data) != 0 || m.DataCount != nil {
		return fmt.Errorf("data segments left in place")
	}
	return nil
}

func sameSignature(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
