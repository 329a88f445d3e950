package instrument

import (
	"context"
	stderrors "errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/methods"
	"github.com/wippyai/wasm-instrument/wasm"
)

func methodModule() *wasm.Module {
	return &wasm.Module{
		Types:    []wasm.FuncType{{}},
		Funcs:    []uint32{0, 0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "canister_init", Kind: wasm.KindFunc, Idx: 0},
			{Name: "canister_query greet", Kind: wasm.KindFunc, Idx: 1},
			{Name: "helper", Kind: wasm.KindFunc, Idx: 1},
		},
		Data: []wasm.DataSegment{{Offset: wasm.ConstI32Expr(16), Init: []byte("hi")}},
		Code: []wasm.FuncBody{
			{Code: wasm.EncodeInstructions([]wasm.Instruction{{Opcode: wasm.OpEnd}})},
			{Code: wasm.EncodeInstructions([]wasm.Instruction{{Opcode: wasm.OpNop}, {Opcode: wasm.OpEnd}})},
		},
	}
}

func TestInstrument(t *testing.T) {
	out, err := Instrument(methodModule().Encode(), DefaultConfig())
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	if !IsInstrumented(out.Binary) {
		t.Error("output not detected as instrumented")
	}
	if len(out.Data) != 1 || out.Data[0].Offset != 16 || string(out.Data[0].Bytes) != "hi" {
		t.Errorf("data = %+v", out.Data)
	}
	want := []methods.Method{
		{Name: "canister_init", Kind: methods.KindSystem},
		{Name: "greet", Kind: methods.KindQuery},
	}
	if len(out.ExportedMethods) != len(want) {
		t.Fatalf("methods = %v, want %v", out.ExportedMethods, want)
	}
	for i := range want {
		if out.ExportedMethods[i] != want[i] {
			t.Errorf("method %d = %v, want %v", i, out.ExportedMethods[i], want[i])
		}
	}
	// 1 + 2 body instructions
	if out.CompilationCost != 3*DefaultInstructionCompileCost {
		t.Errorf("compilation cost = %d", out.CompilationCost)
	}
	if out.Stats.Functions != 2 {
		t.Errorf("functions = %d, want 2", out.Stats.Functions)
	}

	m, err := wasm.ParseModuleValidate(out.Binary)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(m.Data) != 0 {
		t.Error("data section kept")
	}
}

func TestInstrument_RestrictedMethods(t *testing.T) {
	cfg := Config{Methods: methods.Restrict(nil, methods.KindQuery)}
	out, err := Instrument(methodModule().Encode(), cfg)
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if len(out.ExportedMethods) != 1 || out.ExportedMethods[0].Name != "greet" {
		t.Errorf("methods = %v", out.ExportedMethods)
	}
}

func TestInstrument_Errors(t *testing.T) {
	if _, err := Instrument([]byte{0, 'a', 's', 'm'}, Config{}); !stderrors.Is(err, errors.ErrDecode) {
		t.Errorf("truncated input: err = %v, want decode error", err)
	}

	two := &wasm.Module{Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}, {Limits: wasm.Limits{Min: 1}}}}
	if _, err := Instrument(two.Encode(), Config{}); !errors.IsStructural(err) {
		t.Errorf("two memories: err = %v, want structural", err)
	}
}

func TestPlan(t *testing.T) {
	plans, err := Plan(methodModule().Encode(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(plans))
	}
	for _, p := range plans {
		if len(p.Points) == 0 || p.Points[0].Scope != ScopeReentrantBlockStart || p.Points[0].Position != 0 {
			t.Errorf("function %d does not start with a reentrant point: %v", p.FuncIdx, p.Points)
		}
	}
	if plans[1].Points[0].Cost != 1 {
		t.Errorf("nop body cost = %d, want 1", plans[1].Points[0].Cost)
	}
}

func TestCompilationCost(t *testing.T) {
	cost, err := CompilationCost(methodModule().Encode(), Config{InstructionCompileCost: 2})
	if err != nil {
		t.Fatalf("CompilationCost: %v", err)
	}
	if cost != 6 {
		t.Errorf("cost = %d, want 6", cost)
	}

	// a zero coefficient charges nothing
	out, err := Instrument(methodModule().Encode(), Config{InstructionCompileCost: 0})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if out.CompilationCost != 0 {
		t.Errorf("zero coefficient: cost = %d, want 0", out.CompilationCost)
	}
	if cost, err := CompilationCost(methodModule().Encode(), Config{}); err != nil || cost != 0 {
		t.Errorf("zero coefficient: CompilationCost = %d, %v", cost, err)
	}
}

func TestInstrumentContext_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	if _, err := InstrumentContext(context.Background(), methodModule().Encode(), Config{}); err != nil {
		t.Fatalf("InstrumentContext: %v", err)
	}
	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "instrument" {
		t.Fatalf("spans = %v", spans)
	}
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	if _, err := Instrument(methodModule().Encode(), Config{}); err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	entries := logs.FilterMessage("instrumented module").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["functions"]; got != int64(2) {
		t.Errorf("functions field = %v", got)
	}
}
