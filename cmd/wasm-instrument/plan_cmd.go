package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
)

func newPlanCmd(_ *app) *cobra.Command {
	var funcIdx int
	cmd := &cobra.Command{
		Use:   "plan <in.wasm>",
		Short: "Print the cost injection points of each function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			plans, err := instrument.Plan(data, nil)
			if err != nil {
				return err
			}
			if funcIdx >= 0 {
				plans = selectPlan(plans, uint32(funcIdx))
				if plans == nil {
					return errors.NotFound(errors.PhaseInstrument, "function", fmt.Sprint(funcIdx))
				}
			}
			newPrinter(cmd.OutOrStdout()).plan(plans)
			return nil
		},
	}
	cmd.Flags().IntVar(&funcIdx, "func", -1, "only print the function with this index")
	return cmd
}

func selectPlan(plans []instrument.FunctionPlan, idx uint32) []instrument.FunctionPlan {
	for _, p := range plans {
		if p.FuncIdx == idx {
			return []instrument.FunctionPlan{p}
		}
	}
	return nil
}
