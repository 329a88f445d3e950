package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
	"github.com/wippyai/wasm-instrument/wasm"
)

func code(instrs ...wasm.Instruction) wasm.FuncBody {
	return wasm.FuncBody{Code: wasm.EncodeInstructions(append(instrs, wasm.Instruction{Opcode: wasm.OpEnd}))}
}

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func localGet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: idx}}
}

// countdown loops until its i32 argument reaches zero. Each iteration costs 5.
func countdown() wasm.FuncBody {
	return code(
		wasm.Instruction{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		localGet(0),
		i32Const(1),
		wasm.Instruction{Opcode: wasm.OpI32Sub},
		wasm.Instruction{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: 0}},
		wasm.Instruction{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 0}},
		wasm.Instruction{Opcode: wasm.OpEnd},
	)
}

func load(t *testing.T, m *wasm.Module, cfg InstanceConfig) *Instance {
	t.Helper()
	require := require.New(t)
	ctx := context.Background()

	out, err := instrument.Instrument(m.Encode(), instrument.Config{})
	require.NoError(err)

	rt, err := New(ctx, Config{})
	require.NoError(err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	mod, err := rt.Load(ctx, out)
	require.NoError(err)

	inst, err := mod.Instantiate(ctx, cfg)
	require.NoError(err)
	return inst
}

func TestCall_LoopRunsOutOfInstructions(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	inst := load(t, &wasm.Module{
		Types:   []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "canister_update count", Kind: wasm.KindFunc, Idx: 0}},
		Code:    []wasm.FuncBody{countdown()},
	}, InstanceConfig{})

	res, err := inst.Call(ctx, "canister_update count", 100_000, 1000)
	require.NoError(err)
	require.Equal(uint64(5000), res.Instructions)
	require.Equal(int64(95_000), res.Remaining)

	res, err = inst.Call(ctx, "canister_update count", 100_000, 1<<30)
	require.ErrorIs(err, errors.ErrOutOfInstructions)
	require.NotNil(res)
	// 20001 iterations of cost 5 against a budget of 100000
	require.Equal(int64(-5), res.Remaining)
	require.Equal(uint64(100_005), res.Instructions)
	require.False(errors.IsStructural(err))

	// the instance stays usable after a trap
	res, err = inst.Call(ctx, "canister_update count", 10, 1)
	require.NoError(err)
	require.Equal(uint64(5), res.Instructions)
}

func TestCall_MemoryQuota(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	inst := load(t, &wasm.Module{
		Types:    []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports:  []wasm.Export{{Name: "grow", Kind: wasm.KindFunc, Idx: 0}},
		Code: []wasm.FuncBody{code(
			localGet(0),
			wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		)},
	}, InstanceConfig{AvailableMemory: 2 * wasm.PageSize})

	res, err := inst.Call(ctx, "grow", 1000, 1)
	require.NoError(err)
	require.Equal(int32(1), api.DecodeI32(res.Results[0]))

	available, limited := inst.AvailableMemory()
	require.True(limited)
	require.Equal(wasm.PageSize, available)

	res, err = inst.Call(ctx, "grow", 1000, 2)
	require.NoError(err)
	require.Equal(int32(-1), api.DecodeI32(res.Results[0]))

	available, _ = inst.AvailableMemory()
	require.Equal(wasm.PageSize, available)
}

func TestCall_FailedGrowKeepsQuota(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	maxPages := uint64(1)
	inst := load(t, &wasm.Module{
		Types:    []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: &maxPages}}},
		Exports:  []wasm.Export{{Name: "grow", Kind: wasm.KindFunc, Idx: 0}},
		Code: []wasm.FuncBody{code(
			localGet(0),
			wasm.Instruction{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		)},
	}, InstanceConfig{AvailableMemory: 4 * wasm.PageSize})

	res, err := inst.Call(ctx, "grow", 1000, 1)
	require.NoError(err)
	require.Equal(int32(-1), api.DecodeI32(res.Results[0]))

	available, _ := inst.AvailableMemory()
	require.Equal(4*wasm.PageSize, available)
}

func TestStart_AndPersistentGlobals(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	start := uint32(0)
	inst := load(t, &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
			Init: wasm.ConstI32Expr(0),
		}},
		Start: &start,
		Code: []wasm.FuncBody{code(
			i32Const(42),
			wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
		)},
	}, InstanceConfig{})

	name := instrument.MutableGlobalExportPrefix + "0"
	require.Equal(map[string]uint64{name: 0}, inst.PersistentGlobals(), "start must not run at instantiation")

	res, err := inst.Start(ctx, 100)
	require.NoError(err)
	require.Equal(uint64(2), res.Instructions)
	require.Equal(map[string]uint64{name: 42}, inst.PersistentGlobals())

	require.NoError(inst.RestoreGlobals(map[string]uint64{name: 7}))
	require.Equal(map[string]uint64{name: 7}, inst.PersistentGlobals())
	require.Error(inst.RestoreGlobals(map[string]uint64{"missing": 1}))
}

func TestStart_NoStartFunction(t *testing.T) {
	inst := load(t, &wasm.Module{}, InstanceConfig{})
	res, err := inst.Start(context.Background(), 100)
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestInstantiate_DataSegments(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	inst := load(t, &wasm.Module{
		Types:    []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports:  []wasm.Export{{Name: "canister_query first", Kind: wasm.KindFunc, Idx: 0}},
		Data:     []wasm.DataSegment{{Offset: wasm.ConstI32Expr(10), Init: []byte("abc")}},
		Code: []wasm.FuncBody{code(
			i32Const(10),
			wasm.Instruction{Opcode: wasm.OpI32Load8U, Imm: wasm.MemoryImm{}},
		)},
	}, InstanceConfig{})

	res, err := inst.Call(ctx, "canister_query first", 100)
	require.NoError(err)
	require.Equal(uint64('a'), res.Results[0])

	got, ok := inst.Memory().Read(10, 3)
	require.True(ok)
	require.Equal([]byte("abc"), got)
}

func TestCall_BulkMemoryChargesOperand(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	inst := load(t, &wasm.Module{
		Types:    []wasm.FuncType{{}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports:  []wasm.Export{{Name: "fill", Kind: wasm.KindFunc, Idx: 0}},
		Code: []wasm.FuncBody{code(
			i32Const(0),
			i32Const(7),
			i32Const(100),
			wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}}},
		)},
	}, InstanceConfig{})

	res, err := inst.Call(ctx, "fill", 1000)
	require.NoError(err)
	require.Equal(uint64(104), res.Instructions)

	got, ok := inst.Memory().Read(99, 2)
	require.True(ok)
	require.Equal([]byte{7, 0}, got)

	_, err = inst.Call(ctx, "fill", 50)
	require.ErrorIs(err, errors.ErrOutOfInstructions)
}

func TestCall_Errors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	inst := load(t, &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "boom", Kind: wasm.KindFunc, Idx: 0}},
		Code:    []wasm.FuncBody{code(wasm.Instruction{Opcode: wasm.OpUnreachable})},
	}, InstanceConfig{})

	_, err := inst.Call(ctx, "missing", 10)
	require.Error(err)

	_, err = inst.Call(ctx, "boom", 10)
	require.Error(err)
	require.NotErrorIs(err, errors.ErrOutOfInstructions)
	var e *errors.Error
	require.ErrorAs(err, &e)
	require.Equal(errors.KindTrap, e.Kind)
}

func TestLoad_RejectsUninstrumented(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, Config{})
	require.NoError(t, err)
	defer rt.Close(ctx)

	plain := (&wasm.Module{}).Encode()
	_, err = rt.Load(ctx, &instrument.Output{Binary: plain})
	require.Error(t, err)
}
