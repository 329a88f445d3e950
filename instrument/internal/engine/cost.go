package engine

import (
	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/wasm"
)

// DefaultInstructionCompileCost is the per-instruction compilation charge.
const DefaultInstructionCompileCost uint64 = 10

// instructionCount counts the decoded instructions of the input module:
// every body including its final end, plus every global initializer.
func instructionCount(m *wasm.Module, bodies [][]wasm.Instruction) (uint64, error) {
	var n uint64
	for _, code := range bodies {
		n += uint64(len(code))
	}
	for i := range m.Globals {
		instrs, err := wasm.DecodeInstructions(m.Globals[i].Init)
		if err != nil {
			return 0, errors.New(errors.PhaseDecode, errors.KindMalformed).
				Path(globalPath(i)).
				Cause(err).
				Detail("decode initializer").
				Build()
		}
		n += uint64(len(instrs))
	}
	return n, nil
}
