package embedder

import (
	"context"
	stderrors "errors"
	"math"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
)

// Instance is one instantiation of a Module. Calls on an instance are
// serialized.
type Instance struct {
	module  *Module
	mod     api.Module
	counter api.MutableGlobal
	quota   *memoryQuota
	tracer  trace.Tracer
	mu      sync.Mutex
}

// CallResult reports the outcome of one metered call.
type CallResult struct {
	Results []uint64
	// Instructions is the budget minus the remaining counter.
	Instructions uint64
	// Remaining is the counter after the call. It is negative when the
	// budget ran out.
	Remaining int64
}

// Start runs canister_start when the module has one. The result is nil
// otherwise.
func (i *Instance) Start(ctx context.Context, budget uint64) (*CallResult, error) {
	if !i.module.hasStart {
		return nil, nil
	}
	return i.Call(ctx, instrument.StartExport, budget)
}

// Call sets the instruction counter to budget, invokes export and reads the
// counter back. When the budget runs out the partial result is returned
// together with an error matching errors.ErrOutOfInstructions.
func (i *Instance) Call(ctx context.Context, export string, budget uint64, params ...uint64) (*CallResult, error) {
	if budget > math.MaxInt64 {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "budget exceeds the counter range")
	}
	fn := i.mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", export)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ctx, span := i.tracer.Start(ctx, "call", trace.WithAttributes(
		attribute.String("wasm.export", export),
		attribute.Int64("wasm.budget", int64(budget)),
	))
	defer span.End()

	i.counter.Set(uint64(int64(budget)))
	results, callErr := fn.Call(withCallState(ctx, &callState{quota: i.quota, budget: budget}), params...)
	remaining := int64(i.counter.Get())

	res := &CallResult{
		Results:      results,
		Instructions: uint64(int64(budget) - remaining),
		Remaining:    remaining,
	}
	span.SetAttributes(attribute.Int64("wasm.instructions", int64(res.Instructions)))

	if callErr != nil {
		err := callError(export, budget, callErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		Logger().Debug("call failed",
			zap.String("export", export),
			zap.Int64("remaining", remaining),
			zap.Error(err))
		return res, err
	}

	Logger().Debug("call finished",
		zap.String("export", export),
		zap.Uint64("instructions", res.Instructions))
	return res, nil
}

func callError(export string, budget uint64, err error) error {
	if stderrors.Is(err, errors.ErrOutOfInstructions) {
		return errors.OutOfInstructions(budget)
	}
	return errors.Trap(export, err)
}

// Counter returns the current value of the instruction counter.
func (i *Instance) Counter() int64 {
	return int64(i.counter.Get())
}

// AvailableMemory reports the remaining memory quota in bytes. ok is false
// for an unlimited instance.
func (i *Instance) AvailableMemory() (available uint64, ok bool) {
	return i.quota.remaining()
}

// PersistentGlobals snapshots every exported mutable global except the
// instruction counter.
func (i *Instance) PersistentGlobals() map[string]uint64 {
	values := make(map[string]uint64, len(i.module.globals))
	for _, name := range i.module.globals {
		if g := i.mod.ExportedGlobal(name); g != nil {
			values[name] = g.Get()
		}
	}
	return values
}

// RestoreGlobals writes values captured by PersistentGlobals, typically
// into a fresh instance after an upgrade.
func (i *Instance) RestoreGlobals(values map[string]uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for name, v := range values {
		g, ok := i.mod.ExportedGlobal(name).(api.MutableGlobal)
		if !ok {
			return errors.NotFound(errors.PhaseRuntime, "mutable global", name)
		}
		g.Set(v)
	}
	return nil
}

// Memory returns the exported memory, or nil.
func (i *Instance) Memory() api.Memory {
	return i.mod.ExportedMemory(instrument.MemoryExport)
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}
