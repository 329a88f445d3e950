package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-instrument/embedder"
	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		export      string
		args        []string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "run <in.wasm>",
		Short: "Instrument a module and call one of its exports under a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			if interactive {
				return runInteractive(a, files[0])
			}
			if export == "" {
				return errors.InvalidInput(errors.PhaseConfig, "--export is required without -i")
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, a, files[0])
			if err != nil {
				return err
			}
			defer s.close(ctx)

			p := newPrinter(cmd.OutOrStdout())
			if s.start != nil {
				p.call(instrument.StartExport, funcInfo{name: instrument.StartExport}, s.start, nil)
			}
			f, err := findFunc(s.funcs, export)
			if err != nil {
				return err
			}
			res, err := s.call(ctx, f, args)
			p.call(export, f, res, err)
			return err
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "export to call")
	cmd.Flags().StringSliceVar(&args, "arg", nil, "argument for the export, repeatable")
	cmd.Flags().Uint64("budget", 0, "instruction budget per call")
	cmd.Flags().Uint64("memory", 0, "bytes the module may grow its memory by, 0 for unlimited")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick exports and arguments in a terminal UI")
	a.bind("budget", cmd.Flags().Lookup("budget"))
	a.bind("memory", cmd.Flags().Lookup("memory"))
	return cmd
}

// session is an instrumented module instantiated on a fresh runtime.
type session struct {
	rt     *embedder.Runtime
	inst   *embedder.Instance
	start  *embedder.CallResult
	funcs  []funcInfo
	budget uint64
}

func openSession(ctx context.Context, a *app, path string) (*session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := instrument.InstrumentContext(ctx, data, a.instrumentConfig())
	if err != nil {
		return nil, err
	}
	funcs, err := exportedFuncs(out.Binary, instrument.StartExport)
	if err != nil {
		return nil, err
	}

	rt, err := embedder.New(ctx, embedder.Config{})
	if err != nil {
		return nil, err
	}
	s := &session{rt: rt, funcs: funcs, budget: a.settings.Budget}

	mod, err := rt.Load(ctx, out)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	s.inst, err = mod.Instantiate(ctx, embedder.InstanceConfig{AvailableMemory: a.settings.Memory})
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	s.start, err = s.inst.Start(ctx, s.budget)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	a.logger.Debug("session ready",
		zap.String("module", path),
		zap.Int("exports", len(funcs)),
		zap.Int("methods", len(mod.Methods())),
		zap.Uint64("budget", s.budget))
	return s, nil
}

func (s *session) call(ctx context.Context, f funcInfo, args []string) (*embedder.CallResult, error) {
	params, err := encodeArgs(f, args)
	if err != nil {
		return nil, err
	}
	return s.inst.Call(ctx, f.name, s.budget, params...)
}

func (s *session) close(ctx context.Context) {
	if s.inst != nil {
		_ = s.inst.Close(ctx)
	}
	_ = s.rt.Close(ctx)
}

func runInteractive(a *app, filename string) error {
	p := tea.NewProgram(newInteractiveModel(a, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
