package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-instrument/instrument"
)

func newInstrumentCmd(a *app) *cobra.Command {
	var (
		output   string
		segments string
		costOnly bool
	)
	cmd := &cobra.Command{
		Use:   "instrument <in.wasm>",
		Short: "Instrument a module and report what was injected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())

			if costOnly {
				cost, err := instrument.CompilationCost(data, a.instrumentConfig())
				if err != nil {
					return err
				}
				fmt.Fprintln(p.w, cost)
				return nil
			}

			out, err := instrument.InstrumentContext(cmd.Context(), data, a.instrumentConfig())
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, out.Binary, 0o644); err != nil {
					return err
				}
			}
			if segments != "" {
				if err := writeSegments(segments, out.Data); err != nil {
					return err
				}
			}
			a.logger.Info("instrumented",
				zap.String("input", args[0]),
				zap.String("output", output),
				zap.Int("bytes", len(out.Binary)))
			p.instrumented(filepath.Base(args[0]), len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the instrumented module to this file")
	cmd.Flags().StringVar(&segments, "segments", "", "write extracted data segments as JSON to this file")
	cmd.Flags().BoolVar(&costOnly, "cost-only", false, "print only the compilation cost")
	return cmd
}

// segmentJSON is the on-disk form of an extracted data segment.
type segmentJSON struct {
	Bytes  string `json:"bytes"`
	Offset uint64 `json:"offset"`
	Length int    `json:"length"`
}

func writeSegments(path string, segs instrument.Segments) error {
	out := make([]segmentJSON, len(segs))
	for i, s := range segs {
		out[i] = segmentJSON{Offset: s.Offset, Length: len(s.Bytes), Bytes: hex.EncodeToString(s.Bytes)}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
