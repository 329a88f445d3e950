package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
)

// batchResult is the outcome for one input file.
type batchResult struct {
	err  error
	out  *instrument.Output
	path string
	size int
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		jobs   int
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "batch <files...>",
		Short: "Instrument many modules concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			if jobs < 1 {
				return errors.InvalidInput(errors.PhaseConfig, "--jobs must be at least 1")
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
			}
			results := make([]batchResult, len(files))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(jobs)
			for i, path := range files {
				g.Go(func() error {
					r := &results[i]
					r.path = path
					data, err := os.ReadFile(path)
					if err != nil {
						// I/O failures stop the batch; instrumentation
						// failures are reported per file.
						return err
					}
					r.size = len(data)
					r.out, r.err = instrument.InstrumentContext(ctx, data, a.instrumentConfig())
					if r.err != nil || outDir == "" {
						return nil
					}
					return os.WriteFile(outputPath(outDir, path), r.out.Binary, 0o644)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			var failed int
			for _, r := range results {
				if r.err != nil {
					failed++
					p.failure(r.path, r.err)
					a.logger.Warn("instrumentation failed", zap.String("input", r.path), zap.Error(r.err))
					continue
				}
				fmt.Fprintf(p.w, "%s %d -> %d bytes, %d points, cost %d\n",
					p.render(funcStyle, r.path), r.size, len(r.out.Binary),
					r.out.Stats.InjectionPoints, r.out.CompilationCost)
			}
			if failed > 0 {
				return errors.New(errors.PhaseInstrument, errors.KindInvalidInput).
					Detail("%d of %d modules failed", failed, len(files)).
					Build()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "number of modules instrumented at once")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write instrumented modules into this directory")
	return cmd
}

// outputPath maps dir/name.wasm to outDir/name.instrumented.wasm.
func outputPath(outDir, path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(outDir, base+".instrumented.wasm")
}
