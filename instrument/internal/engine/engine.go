package engine

import (
	stderrors "errors"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/methods"
	"github.com/wippyai/wasm-instrument/wasm"
)

// Config configures the instrumentation engine.
type Config struct {
	Costs   CostTable
	Methods methods.Parser
	// InstructionCompileCost is charged per input instruction. Zero charges
	// nothing.
	InstructionCompileCost uint64
}

// Stats summarizes one instrumentation run.
type Stats struct {
	Functions       int
	InjectionPoints int
	DynamicPoints   int
	MemoryGrows     int
	Instructions    uint64
}

// Result is the output of a successful instrumentation.
type Result struct {
	Binary          []byte
	Data            Segments
	ExportedMethods []methods.Method
	Stats           Stats
	CompilationCost uint64
}

// FunctionPlan lists the filtered injection points of one local function.
type FunctionPlan struct {
	Points       []InjectionPoint
	FuncIdx      uint32
	Instructions int
}

// Engine orchestrates the instrumentation pipeline.
//
// The engine is stateless between calls and safe for concurrent use.
type Engine struct {
	costs       CostTable
	methods     methods.Parser
	compileCost uint64
}

// New creates an engine with the given config.
func New(cfg Config) *Engine {
	costs := cfg.Costs
	if costs == nil {
		costs = DefaultCosts{}
	}
	return &Engine{
		costs:       costs,
		methods:     cfg.Methods,
		compileCost: cfg.InstructionCompileCost,
	}
}

// Instrument rewrites wasmData so that every execution path charges the
// instruction counter.
func (e *Engine) Instrument(wasmData []byte) (*Result, error) {
	m, bodies, err := decode(wasmData)
	if err != nil {
		return nil, err
	}

	count, err := instructionCount(m, bodies)
	if err != nil {
		return nil, err
	}
	stats := Stats{Functions: len(bodies), Instructions: count}
	inputImported := m.NumImportedFuncs()

	injectImports(m)
	if err := visitFuncRefs(m, bodies, shiftBy(injectedImportCount)); err != nil {
		return nil, err
	}

	if err := exportBoundaries(m); err != nil {
		return nil, err
	}

	data := exportData{
		counterGlobal: uint32(m.NumGlobals()),
		decrementFunc: uint32(m.NumFuncs()),
		start:         m.Start,
	}
	m.Start = nil

	for i := range bodies {
		points, err := e.plan(inputImported+i, bodies[i])
		if err != nil {
			return nil, err
		}
		for _, pt := range points {
			if pt.Kind == CostDynamic {
				stats.DynamicPoints++
			}
		}
		stats.InjectionPoints += len(points)
		bodies[i] = inject(bodies[i], points, data)
	}

	for i := range bodies {
		var grows int
		bodies[i], grows = hookMemoryGrow(&m.Code[i], m.TypeAt(m.Funcs[i]), bodies[i])
		stats.MemoryGrows += grows
		m.Code[i].Code = wasm.EncodeInstructions(bodies[i])
	}

	if err := addRuntimeSupport(m, data); err != nil {
		return nil, err
	}

	exported := methods.Collect(e.methods, exportNames(m))

	segments, err := extractData(m, bodies)
	if err != nil {
		return nil, err
	}

	if err := verifyOutput(m); err != nil {
		return nil, errors.Encode(err)
	}

	return &Result{
		Binary:          m.Encode(),
		Data:            segments,
		ExportedMethods: exported,
		CompilationCost: e.compileCost * count,
		Stats:           stats,
	}, nil
}

// Plan reports the injection points Instrument would use for every local
// function of wasmData, without rewriting anything.
func (e *Engine) Plan(wasmData []byte) ([]FunctionPlan, error) {
	m, bodies, err := decode(wasmData)
	if err != nil {
		return nil, err
	}
	numImported := m.NumImportedFuncs()
	plans := make([]FunctionPlan, len(bodies))
	for i, code := range bodies {
		points, err := e.plan(numImported+i, code)
		if err != nil {
			return nil, err
		}
		plans[i] = FunctionPlan{
			FuncIdx:      uint32(numImported + i),
			Instructions: len(code),
			Points:       points,
		}
	}
	return plans, nil
}

// CompilationCost returns the compilation charge of wasmData.
func (e *Engine) CompilationCost(wasmData []byte) (uint64, error) {
	m, bodies, err := decode(wasmData)
	if err != nil {
		return 0, err
	}
	count, err := instructionCount(m, bodies)
	if err != nil {
		return 0, err
	}
	return e.compileCost * count, nil
}

func (e *Engine) plan(funcIdx int, code []wasm.Instruction) ([]InjectionPoint, error) {
	points, err := Plan(code, e.costs)
	if err != nil {
		var ie *errors.Error
		if stderrors.As(err, &ie) && len(ie.Path) == 0 {
			ie.Path = []string{funcPath(funcIdx)}
		}
		return nil, err
	}
	return points, nil
}

// decode parses and validates wasmData and decodes every body once.
func decode(wasmData []byte) (*wasm.Module, [][]wasm.Instruction, error) {
	m, err := wasm.ParseModuleValidate(wasmData)
	if err != nil {
		de := errors.Decode(err)
		if stderrors.Is(err, wasm.ErrUnsupportedFeature) {
			de.Kind = errors.KindUnsupported
		}
		return nil, nil, de
	}
	numImported := m.NumImportedFuncs()
	bodies := make([][]wasm.Instruction, len(m.Code))
	for i := range m.Code {
		code, err := wasm.DecodeInstructions(m.Code[i].Code)
		if err != nil {
			return nil, nil, errors.DecodeFunction(numImported+i, err)
		}
		bodies[i] = code
	}
	return m, bodies, nil
}

// IsInstrumented reports whether wasmData already carries the counter export.
func IsInstrumented(wasmData []byte) bool {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return false
	}
	exp, ok := m.ExportByName(CounterExport)
	return ok && exp.Kind == wasm.KindGlobal
}
