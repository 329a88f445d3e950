package instrument

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-instrument/instrument/internal/engine"
	"github.com/wippyai/wasm-instrument/methods"
)

const tracerName = "github.com/wippyai/wasm-instrument/instrument"

// Export and import names fixed by the host interface.
const (
	HostModule                = engine.HostModule
	OutOfInstructionsImport   = engine.OutOfInstructionsImport
	UpdateAvailableMemoryName = engine.UpdateAvailableMemoryName
	CounterExport             = engine.CounterExport
	StartExport               = engine.StartExport
	TableExport               = engine.TableExport
	MemoryExport              = engine.MemoryExport
	MutableGlobalExportPrefix = engine.MutableGlobalExportPrefix

	DefaultInstructionCompileCost = engine.DefaultInstructionCompileCost
)

// CostTable assigns an abstract cost to each instruction.
type CostTable = engine.CostTable

// DefaultCosts charges nothing for block delimiters and 1 otherwise.
type DefaultCosts = engine.DefaultCosts

type (
	InjectionPoint = engine.InjectionPoint
	Scope          = engine.Scope
	CostKind       = engine.CostKind
	FunctionPlan   = engine.FunctionPlan
	Segment        = engine.Segment
	Segments       = engine.Segments
	Stats          = engine.Stats
)

const (
	ScopeReentrantBlockStart    = engine.ScopeReentrantBlockStart
	ScopeNonReentrantBlockStart = engine.ScopeNonReentrantBlockStart
	ScopeBlockEnd               = engine.ScopeBlockEnd
	CostStatic                  = engine.CostStatic
	CostDynamic                 = engine.CostDynamic
)

// Config configures the instrumentation.
type Config struct {
	// Costs defaults to DefaultCosts.
	Costs CostTable
	// Methods recognizes exported canister methods. Defaults to
	// methods.Standard.
	Methods methods.Parser
	// InstructionCompileCost is charged per input instruction when computing
	// Output.CompilationCost. Zero charges nothing; DefaultConfig sets
	// DefaultInstructionCompileCost.
	InstructionCompileCost uint64
}

// DefaultConfig returns a Config charging DefaultInstructionCompileCost per
// instruction.
func DefaultConfig() Config {
	return Config{InstructionCompileCost: DefaultInstructionCompileCost}
}

func (c Config) engine() *engine.Engine {
	return engine.New(engine.Config{
		Costs:                  c.Costs,
		Methods:                c.Methods,
		InstructionCompileCost: c.InstructionCompileCost,
	})
}

// Output is the result of a successful instrumentation.
type Output struct {
	Binary          []byte
	Data            Segments
	ExportedMethods []methods.Method
	Stats           Stats
	CompilationCost uint64
}

// Instrument applies the instrumentation pass to a WebAssembly module.
//
// The input is parsed and validated first; failures are decode errors.
// Modules whose shape the host cannot support (several memories, passive
// or non-constant data segments, legacy exception handling) fail with a
// structural error. Export names the pass needs for itself fail with a
// reserved-symbol error. There is no partial output.
func Instrument(wasmData []byte, cfg Config) (*Output, error) {
	return InstrumentContext(context.Background(), wasmData, cfg)
}

// InstrumentContext is Instrument with a span recorded on the tracer
// provider installed in ctx's process.
func InstrumentContext(ctx context.Context, wasmData []byte, cfg Config) (*Output, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "instrument")
	defer span.End()
	span.SetAttributes(attribute.Int("wasm.input_bytes", len(wasmData)))

	res, err := cfg.engine().Instrument(wasmData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		Logger().Debug("instrumentation failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("wasm.output_bytes", len(res.Binary)),
		attribute.Int("wasm.functions", res.Stats.Functions),
		attribute.Int("wasm.injection_points", res.Stats.InjectionPoints),
		attribute.Int("wasm.data_segments", len(res.Data)),
		attribute.Int64("wasm.compilation_cost", int64(res.CompilationCost)),
	)
	Logger().Debug("instrumented module",
		zap.Int("functions", res.Stats.Functions),
		zap.Int("points", res.Stats.InjectionPoints),
		zap.Int("dynamic_points", res.Stats.DynamicPoints),
		zap.Int("memory_grows", res.Stats.MemoryGrows),
		zap.Int("segments", len(res.Data)),
		zap.Int("methods", len(res.ExportedMethods)),
		zap.Uint64("compilation_cost", res.CompilationCost),
	)

	return &Output{
		Binary:          res.Binary,
		Data:            res.Data,
		ExportedMethods: res.ExportedMethods,
		Stats:           res.Stats,
		CompilationCost: res.CompilationCost,
	}, nil
}

// Plan returns the filtered injection points of every local function of
// wasmData. A nil costs uses DefaultCosts.
func Plan(wasmData []byte, costs CostTable) ([]FunctionPlan, error) {
	return engine.New(engine.Config{Costs: costs}).Plan(wasmData)
}

// CompilationCost returns the compilation charge of wasmData without
// instrumenting it.
func CompilationCost(wasmData []byte, cfg Config) (uint64, error) {
	return cfg.engine().CompilationCost(wasmData)
}

// IsInstrumented reports whether wasmData already exports the instruction
// counter.
func IsInstrumented(wasmData []byte) bool {
	return engine.IsInstrumented(wasmData)
}
