package embedder

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
	"github.com/wippyai/wasm-instrument/wasm"
)

// callState is the per-call view of an instance seen by host functions.
type callState struct {
	quota  *memoryQuota
	budget uint64
}

type callStateKey struct{}

func withCallState(ctx context.Context, st *callState) context.Context {
	return context.WithValue(ctx, callStateKey{}, st)
}

func callStateFrom(ctx context.Context) *callState {
	st, _ := ctx.Value(callStateKey{}).(*callState)
	return st
}

// memoryQuota tracks how many bytes an instance may still grow by.
type memoryQuota struct {
	mu        sync.Mutex
	available uint64
	limited   bool
}

func newMemoryQuota(available uint64) *memoryQuota {
	return &memoryQuota{available: available, limited: available > 0}
}

// take charges pages against the quota and reports whether they fit.
func (q *memoryQuota) take(pages uint64) bool {
	if q == nil || !q.limited {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	need := pages * wasm.PageSize
	if need > q.available {
		return false
	}
	q.available -= need
	return true
}

func (q *memoryQuota) remaining() (uint64, bool) {
	if q == nil || !q.limited {
		return 0, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.available, true
}

// instantiateHost registers the "__" module in rt.
func instantiateHost(ctx context.Context, rt wazero.Runtime) error {
	i32 := api.ValueTypeI32
	_, err := rt.NewHostModuleBuilder(instrument.HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(outOfInstructions), nil, nil).
		Export(instrument.OutOfInstructionsImport).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(updateAvailableMemory), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export(instrument.UpdateAvailableMemoryName).
		Instantiate(ctx)
	return err
}

// outOfInstructions aborts the call. wazero surfaces the panic value as the
// call error.
func outOfInstructions(ctx context.Context, _ api.Module, _ []uint64) {
	var budget uint64
	if st := callStateFrom(ctx); st != nil {
		budget = st.budget
	}
	panic(errors.OutOfInstructions(budget))
}

// updateAvailableMemory receives (requested pages, grow result) and returns
// the grow result, or -1 when the quota cannot cover the grow.
func updateAvailableMemory(ctx context.Context, _ api.Module, stack []uint64) {
	requested := uint64(api.DecodeU32(stack[0]))
	result := api.DecodeI32(stack[1])
	stack[0] = api.EncodeI32(result)
	if result < 0 {
		return
	}
	st := callStateFrom(ctx)
	if st == nil || st.quota.take(requested) {
		return
	}
	available, _ := st.quota.remaining()
	Logger().Debug("memory grow denied", zap.Error(errors.MemoryLimit(requested, available)))
	stack[0] = api.EncodeI32(-1)
}
