package embedder

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
	"github.com/wippyai/wasm-instrument/methods"
	"github.com/wippyai/wasm-instrument/wasm"
)

// Module is a compiled instrumented module with its extracted data.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	data     instrument.Segments
	methods  []methods.Method
	globals  []string
	hasStart bool
}

// Load compiles an instrumentation output.
func (r *Runtime) Load(ctx context.Context, out *instrument.Output) (*Module, error) {
	if out == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "nil instrumentation output")
	}
	parsed, err := wasm.ParseModule(out.Binary)
	if err != nil {
		return nil, errors.Decode(err)
	}
	if exp, ok := parsed.ExportByName(instrument.CounterExport); !ok || exp.Kind != wasm.KindGlobal {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "module is not instrumented")
	}

	ctx, span := r.tracer.Start(ctx, "load")
	defer span.End()
	span.SetAttributes(attribute.Int("wasm.bytes", len(out.Binary)))

	compiled, err := r.runtime.CompileModule(ctx, out.Binary)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiation, err, "compile module")
	}

	_, hasStart := parsed.ExportByName(instrument.StartExport)
	return &Module{
		runtime:  r,
		compiled: compiled,
		data:     out.Data,
		methods:  out.ExportedMethods,
		globals:  persistentGlobals(parsed),
		hasStart: hasStart,
	}, nil
}

// persistentGlobals lists exported mutable globals other than the counter.
func persistentGlobals(m *wasm.Module) []string {
	var names []string
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindGlobal || exp.Name == instrument.CounterExport {
			continue
		}
		if gt, ok := m.GlobalTypeAt(exp.Idx); ok && gt.Mutable {
			names = append(names, exp.Name)
		}
	}
	return names
}

// Methods returns the canister methods recognized at instrumentation time.
func (m *Module) Methods() []methods.Method {
	return m.methods
}

// HasStart reports whether the module exports canister_start.
func (m *Module) HasStart() bool {
	return m.hasStart
}

// InstanceConfig configures one instance.
type InstanceConfig struct {
	// AvailableMemory is how many bytes the instance may grow its memory
	// by. 0 means unlimited.
	AvailableMemory uint64
}

// Instantiate creates an anonymous instance and installs the data segments
// into its memory. The start function is not run; see Instance.Start.
func (m *Module) Instantiate(ctx context.Context, cfg InstanceConfig) (*Instance, error) {
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.runtime.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	counter, ok := mod.ExportedGlobal(instrument.CounterExport).(api.MutableGlobal)
	if !ok {
		_ = mod.Close(ctx)
		return nil, errors.InvalidInput(errors.PhaseRuntime, "instruction counter is not a mutable global")
	}

	if err := installData(mod, m.data); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	Logger().Debug("instantiated module")
	return &Instance{
		module:  m,
		mod:     mod,
		counter: counter,
		quota:   newMemoryQuota(cfg.AvailableMemory),
		tracer:  m.runtime.tracer,
	}, nil
}

func installData(mod api.Module, segs instrument.Segments) error {
	if len(segs) == 0 {
		return nil
	}
	mem := mod.ExportedMemory(instrument.MemoryExport)
	if mem == nil {
		return errors.NotFound(errors.PhaseRuntime, "export", instrument.MemoryExport)
	}
	for i, seg := range segs {
		if !mem.Write(uint32(seg.Offset), seg.Bytes) {
			err := errors.SegmentOutOfBounds(i, seg.Offset, uint64(len(seg.Bytes)), uint64(mem.Size()))
			err.Phase = errors.PhaseRuntime
			return err
		}
	}
	return nil
}
