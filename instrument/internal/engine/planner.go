package engine

import (
	"fmt"
	"sort"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/wasm"
)

// Scope tags a static injection point with the kind of block it accounts for.
type Scope int

const (
	// ScopeReentrantBlockStart opens a function or loop body. Its decrement
	// is followed by an overflow check.
	ScopeReentrantBlockStart Scope = iota
	ScopeNonReentrantBlockStart
	ScopeBlockEnd
)

func (s Scope) String() string {
	switch s {
	case ScopeReentrantBlockStart:
		return "reentrant"
	case ScopeNonReentrantBlockStart:
		return "non-reentrant"
	case ScopeBlockEnd:
		return "block-end"
	default:
		return "unknown"
	}
}

// CostKind distinguishes compile-time costs from operand-driven ones.
type CostKind int

const (
	CostStatic CostKind = iota
	// CostDynamic charges the i32 operand on top of the stack.
	CostDynamic
)

// InjectionPoint is a planned splice position in a function body. The
// decrement sequence is inserted before the instruction at Position.
type InjectionPoint struct {
	Position int
	Cost     uint64
	Scope    Scope
	Kind     CostKind
}

func (p InjectionPoint) String() string {
	if p.Kind == CostDynamic {
		return fmt.Sprintf("@%d dynamic", p.Position)
	}
	return fmt.Sprintf("@%d %s cost=%d", p.Position, p.Scope, p.Cost)
}

// CostTable assigns an abstract cost to each instruction. Implementations
// must be deterministic.
type CostTable interface {
	Cost(instr *wasm.Instruction) uint64
}

// DefaultCosts charges nothing for block delimiters and 1 for everything else.
type DefaultCosts struct{}

// Cost implements CostTable.
func (DefaultCosts) Cost(instr *wasm.Instruction) uint64 {
	switch instr.Opcode {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpElse, wasm.OpEnd:
		return 0
	}
	return 1
}

// Plan returns the injection points of a decoded body, sorted by position
// with zero-cost non-reentrant points removed.
func Plan(code []wasm.Instruction, costs CostTable) ([]InjectionPoint, error) {
	points, err := injections(code, costs)
	if err != nil {
		return nil, err
	}
	return filterPoints(points), nil
}

// planner is the reducer over (saved points, current point).
type planner struct {
	costs  CostTable
	stack  []InjectionPoint
	points []InjectionPoint
	cur    InjectionPoint
}

func staticPoint(pos int, scope Scope) InjectionPoint {
	return InjectionPoint{Position: pos, Scope: scope, Kind: CostStatic}
}

func injections(code []wasm.Instruction, costs CostTable) ([]InjectionPoint, error) {
	if costs == nil {
		costs = DefaultCosts{}
	}
	p := planner{costs: costs, cur: staticPoint(0, ScopeReentrantBlockStart)}
	for pos := range code {
		done, err := p.step(pos, &code[pos])
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	sort.SliceStable(p.points, func(i, j int) bool {
		return p.points[i].Position < p.points[j].Position
	})
	return p.points, nil
}

// step consumes one instruction. It reports true once the outermost end
// has been reached.
func (p *planner) step(pos int, instr *wasm.Instruction) (bool, error) {
	p.cur.Cost += p.costs.Cost(instr)

	switch instr.Opcode {
	case wasm.OpLoop:
		p.open(pos, ScopeReentrantBlockStart)
	case wasm.OpBlock, wasm.OpIf, wasm.OpTryTable:
		p.open(pos, ScopeNonReentrantBlockStart)
	case wasm.OpElse, wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable:
		p.points = append(p.points, p.cur)
		p.cur = staticPoint(pos+1, ScopeBlockEnd)
	case wasm.OpEnd:
		p.points = append(p.points, p.cur)
		if len(p.stack) == 0 {
			return true, nil
		}
		p.cur = p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
	case wasm.OpTry, wasm.OpCatch, wasm.OpCatchAll, wasm.OpDelegate, wasm.OpRethrow:
		return false, errors.New(errors.PhaseInstrument, errors.KindUnsupported).
			Value(instr.Opcode).
			Detail("legacy exception handling opcode 0x%02x at instruction %d", instr.Opcode, pos).
			Build()
	default:
		if instr.IsBulkMemory() {
			p.points = append(p.points, InjectionPoint{Position: pos, Kind: CostDynamic})
		}
	}
	return false, nil
}

func (p *planner) open(pos int, scope Scope) {
	p.stack = append(p.stack, p.cur)
	p.cur = staticPoint(pos+1, scope)
}

// filterPoints keeps reentrant and dynamic points unconditionally and other
// static points only when they charge something.
func filterPoints(points []InjectionPoint) []InjectionPoint {
	out := points[:0]
	for _, pt := range points {
		if pt.Kind == CostDynamic || pt.Scope == ScopeReentrantBlockStart || pt.Cost > 0 {
			out = append(out, pt)
		}
	}
	return out
}
