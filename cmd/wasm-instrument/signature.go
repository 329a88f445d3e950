package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/wasm"
)

// funcInfo describes an exported function of an instrumented module.
type funcInfo struct {
	name    string
	params  []wasm.ValType
	results []wasm.ValType
}

func (f funcInfo) signature() string {
	return fmt.Sprintf("(%s) -> (%s)", joinTypes(f.params), joinTypes(f.results))
}

func joinTypes(ts []wasm.ValType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// exportedFuncs lists the callable function exports of binary, skipping
// canister_start which the runtime drives itself.
func exportedFuncs(binary []byte, skip ...string) ([]funcInfo, error) {
	m, err := wasm.ParseModule(binary)
	if err != nil {
		return nil, errors.Decode(err)
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	var funcs []funcInfo
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindFunc || skipped[exp.Name] {
			continue
		}
		ft := m.GetFuncType(exp.Idx)
		if ft == nil {
			continue
		}
		funcs = append(funcs, funcInfo{name: exp.Name, params: ft.Params, results: ft.Results})
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })
	return funcs, nil
}

func findFunc(funcs []funcInfo, name string) (funcInfo, error) {
	for _, f := range funcs {
		if f.name == name {
			return f, nil
		}
	}
	return funcInfo{}, errors.NotFound(errors.PhaseRuntime, "export", name)
}

// encodeArgs converts textual arguments to the wazero stack encoding.
func encodeArgs(f funcInfo, args []string) ([]uint64, error) {
	if len(args) != len(f.params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s takes %d arguments, got %d", f.name, len(f.params), len(args)))
	}
	out := make([]uint64, len(args))
	for i, s := range args {
		v, err := encodeArg(f.params[i], strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err,
				fmt.Sprintf("argument %d", i))
		}
		out[i] = v
	}
	return out, nil
}

func encodeArg(t wasm.ValType, s string) (uint64, error) {
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, err
		}
		if v < -1<<31 || v > 1<<32-1 {
			return 0, fmt.Errorf("%s out of i32 range", s)
		}
		return api.EncodeI32(int32(v)), nil
	case wasm.ValI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return api.EncodeI64(v), nil
		}
		return strconv.ParseUint(s, 0, 64)
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("cannot pass %s from the command line", t)
	}
}

func formatResults(types []wasm.ValType, values []uint64) string {
	parts := make([]string, 0, len(values))
	for i, v := range values {
		var t wasm.ValType
		if i < len(types) {
			t = types[i]
		}
		switch t {
		case wasm.ValI32:
			parts = append(parts, strconv.FormatInt(int64(api.DecodeI32(v)), 10))
		case wasm.ValI64:
			parts = append(parts, strconv.FormatInt(int64(v), 10))
		case wasm.ValF32:
			parts = append(parts, strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32))
		case wasm.ValF64:
			parts = append(parts, strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64))
		default:
			parts = append(parts, fmt.Sprintf("0x%x", v))
		}
	}
	return strings.Join(parts, ", ")
}
