package runtime

import (
	"fmt"
	"strings"

	gostack "github.com/go-stack/stack"
)

// ErrorKind classifies a runtime error per spec §7.
type ErrorKind int

const (
	ErrType ErrorKind = iota
	ErrUndefinedVariable
	ErrUndefinedProperty
	ErrIndexOutOfBounds
	ErrStackOverflow
	ErrNotCallable
	ErrNotAwaitable
	ErrArgumentMismatch
	ErrIO
	ErrFatal
)

// RuntimeError is a runtime-level failure (spec §7 "Runtime"). It carries
// the frame trace captured at the point of failure, innermost frame first.
type RuntimeError struct {
	Kind  ErrorKind
	Msg   string
	Trace []FrameInfo
}

// FrameInfo is one line of a runtime error's frame trace: `[line L] in <fn
// name>` for a function frame, `in script` for the root frame, matching
// original_source/src/vm.c's runtimeError.
type FrameInfo struct {
	Line int
	Name string
}

// Error renders the message followed by the frame trace captured at the
// point of failure, innermost frame first, one `[line L] in <fn name>` line
// per active call frame -- matching original_source/src/vm.c's runtimeError,
// which prints the message then unwinds the call-frame stack top to bottom
// (spec §7: "a stack trace (each active call frame's function name + source
// location of the last-executed instruction)").
func (e *RuntimeError) Error() string {
	if len(e.Trace) == 0 {
		return e.Msg
	}
	var b strings.Builder
	b.WriteString(e.Msg)
	for _, f := range e.Trace {
		fmt.Fprintf(&b, "\n[line %d] in %s", f.Line, f.Name)
	}
	return b.String()
}

func newRuntimeError(kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// FatalError is an allocation failure or invariant violation (spec §7
// "Fatal"): its message carries a captured Go call stack (via
// go-stack/stack). Interpret returns it like a RuntimeError and does not end
// the process itself; cmd/loxvm exits with status 1 when running a file, and
// its REPL prints it and reads the next line.
type FatalError struct {
	Msg       string
	GoTrace   gostack.CallStack
}

func (e *FatalError) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	for _, c := range e.GoTrace {
		fmt.Fprintf(&b, "\n\tat %+v", c)
	}
	return b.String()
}

func newFatalError(format string, args ...any) *FatalError {
	return &FatalError{
		Msg:     fmt.Sprintf(format, args...),
		GoTrace: gostack.Trace().TrimRuntime(),
	}
}

// runtimeErrorOn builds a RuntimeError carrying co's frame trace, innermost
// frame first, each line formatted `[line L] in <fn name>` except the root
// frame which reads `in script`, matching original_source/src/vm.c's
// runtimeError (spec §7).
func (vm *VM) runtimeErrorOn(co *Coroutine, kind ErrorKind, format string, args ...any) *RuntimeError {
	e := newRuntimeError(kind, format, args...)
	if co == nil {
		return e
	}
	for i := co.FrameTop - 1; i >= 0; i-- {
		frame := &co.Frames[i]
		fn := frame.Closure.Fn
		line := 0
		// IP has already advanced past the instruction that faulted.
		if idx := frame.IP - 1; idx >= 0 && idx < len(fn.Chunk.Locs) {
			line = int(fn.Chunk.Locs[idx].Line)
		}
		if fn.Name == nil {
			e.Trace = append(e.Trace, FrameInfo{Line: line, Name: "script"})
		} else {
			e.Trace = append(e.Trace, FrameInfo{Line: line, Name: string(fn.Name.Bytes)})
		}
	}
	return e
}

// wrapNativeError translates an error returned by a native function into a
// RuntimeError carrying co's frame trace. A native that already returns a
// *RuntimeError (e.g. one that wants a specific ErrorKind) passes through
// unchanged.
func wrapNativeError(vm *VM, co *Coroutine, err error) error {
	if re, ok := err.(*RuntimeError); ok {
		if len(re.Trace) == 0 {
			re.Trace = vm.runtimeErrorOn(co, re.Kind, "%s", re.Msg).Trace
		}
		return re
	}
	return vm.runtimeErrorOn(co, ErrIO, "%s", err.Error())
}
