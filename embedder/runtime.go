package embedder

import (
	"context"

	"github.com/tetratelabs/wazero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wippyai/wasm-instrument/errors"
)

const tracerName = "github.com/wippyai/wasm-instrument/embedder"

// Config configures a Runtime.
type Config struct {
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
	// MemoryLimitPages caps every memory in pages of 64KiB. 0 keeps the
	// wazero default of 65536 pages.
	MemoryLimitPages uint32
}

// Runtime hosts instrumented modules.
type Runtime struct {
	runtime wazero.Runtime
	tracer  trace.Tracer
}

// New creates a wazero runtime and registers the "__" host module.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if err := instantiateHost(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Runtime{runtime: rt, tracer: tracer}, nil
}

// Close releases all runtime resources, instances included.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
