package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode     Phase = "decode"     // parsing the input binary
	PhaseInstrument Phase = "instrument" // rewriting the parsed module
	PhaseEncode     Phase = "encode"     // serializing the output binary
	PhaseRuntime    Phase = "runtime"    // executing an instrumented module
	PhaseConfig     Phase = "config"     // loading settings
)

// Kind categorizes the error
type Kind string

const (
	KindMalformed         Kind = "malformed"
	KindUnsupported       Kind = "unsupported"
	KindTooManyMemories   Kind = "too_many_memories"
	KindInvalidSegment    Kind = "invalid_segment"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindReservedSymbol    Kind = "reserved_symbol"
	KindOutOfInstructions Kind = "out_of_instructions"
	KindMemoryLimit       Kind = "memory_limit"
	KindTrap              Kind = "trap"
	KindNotFound          Kind = "not_found"
	KindInstantiation     Kind = "instantiation"
	KindInvalidInput      Kind = "invalid_input"
)

// Sentinels for errors.Is. A sentinel without a Kind matches every error of
// its Phase.
var (
	ErrDecode            = &Error{Phase: PhaseDecode}
	ErrEncode            = &Error{Phase: PhaseEncode}
	ErrReservedSymbol    = &Error{Phase: PhaseInstrument, Kind: KindReservedSymbol}
	ErrOutOfInstructions = &Error{Phase: PhaseRuntime, Kind: KindOutOfInstructions}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && (t.Kind == "" || e.Kind == t.Kind)
	}
	return false
}

// Structural reports whether the error rejects the shape of an otherwise
// well-formed module.
func (e *Error) Structural() bool {
	if e.Phase != PhaseInstrument {
		return false
	}
	switch e.Kind {
	case KindTooManyMemories, KindInvalidSegment, KindOutOfBounds, KindUnsupported:
		return true
	}
	return false
}

// IsStructural reports whether err is or wraps a structural error.
func IsStructural(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Structural() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Decode creates an error for an input binary that cannot be parsed.
func Decode(cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindMalformed,
		Detail: "parse module",
		Cause:  cause,
	}
}

// DecodeFunction creates an error for a function body that cannot be decoded.
func DecodeFunction(funcIdx int, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindMalformed,
		Path:   []string{fmt.Sprintf("function[%d]", funcIdx)},
		Detail: "decode body",
		Cause:  cause,
	}
}

// Encode creates an error for an output module that cannot be serialized.
func Encode(cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindMalformed,
		Detail: "serialize module",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// TooManyMemories rejects a module declaring more than one memory.
func TooManyMemories(count int) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindTooManyMemories,
		Detail: fmt.Sprintf("expected at most 1 memory, found %d", count),
		Value:  count,
	}
}

// InvalidSegment rejects a data segment whose shape cannot be extracted.
func InvalidSegment(segIdx int, detail string) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindInvalidSegment,
		Path:   []string{fmt.Sprintf("data[%d]", segIdx)},
		Detail: detail,
	}
}

// SegmentOutOfBounds rejects a data segment that does not fit in the
// initial memory.
func SegmentOutOfBounds(segIdx int, offset, length, memSize uint64) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindOutOfBounds,
		Path:   []string{fmt.Sprintf("data[%d]", segIdx)},
		Detail: fmt.Sprintf("segment [%d, %d+%d) exceeds initial memory of %d bytes", offset, offset, length, memSize),
		Value:  offset,
	}
}

// ReservedSymbol rejects an export name the instrumentation needs for itself.
func ReservedSymbol(name string) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindReservedSymbol,
		Detail: fmt.Sprintf("export %q is reserved", name),
		Value:  name,
	}
}

// OutOfInstructions reports an exhausted instruction budget.
func OutOfInstructions(limit uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindOutOfInstructions,
		Detail: fmt.Sprintf("instruction limit %d exceeded", limit),
		Value:  limit,
	}
}

// MemoryLimit reports a memory.grow denied by the host's quota.
func MemoryLimit(requestedPages, availableBytes uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindMemoryLimit,
		Detail: fmt.Sprintf("grow by %d pages exceeds %d available bytes", requestedPages, availableBytes),
	}
}

// Trap wraps a runtime trap raised while executing a method.
func Trap(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{method},
		Detail: "execution trapped",
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
