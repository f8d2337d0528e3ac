package runtime

import "github.com/google/uuid"

// CallFrame is (closure reference, instruction pointer, base-of-locals
// pointer into its coroutine's stack) per spec §3.
type CallFrame struct {
	Closure *ObjClosure
	IP      int
	Base    int
}

// Coroutine is a unit of cooperative execution with its own call-frame stack
// and value stack (spec §3, Glossary).
type Coroutine struct {
	ID uuid.UUID

	Prev, Next *Coroutine // active/sleeping list membership

	Promise    *ObjPromise
	SleepUntil int64 // ms since epoch; zero means "not sleeping"

	Frames    []CallFrame
	FrameTop  int
	Stack     []Value
	StackTop  int

	// OpenUpvalues is this coroutine's descending-address singly linked
	// list of open upvalues (spec §3, §4.6). Kept per-coroutine rather than
	// as one VM-wide list: each coroutine owns an independent backing
	// array, so "descending address" only has a coherent meaning within one
	// coroutine's stack, and only the currently-unwinding coroutine's
	// frames are ever torn down at a time. See DESIGN.md.
	OpenUpvalues *ObjUpvalue
}

func (vm *VM) newCoroutine() *Coroutine {
	co := &Coroutine{
		ID:     uuid.New(),
		Frames: make([]CallFrame, MaxFrames),
		Stack:  make([]Value, MaxStack),
	}
	co.Promise = &ObjPromise{State: PromisePending}
	vm.registerObject(co.Promise)
	return co
}

func (co *Coroutine) push(v Value) { co.Stack[co.StackTop] = v; co.StackTop++ }
func (co *Coroutine) pop() Value {
	co.StackTop--
	v := co.Stack[co.StackTop]
	co.Stack[co.StackTop] = Nil // drop reference for GC promptness
	return v
}
func (co *Coroutine) peek(distance int) Value { return co.Stack[co.StackTop-1-distance] }
func (co *Coroutine) popN(n int) {
	for i := 0; i < n; i++ {
		co.StackTop--
		co.Stack[co.StackTop] = Nil
	}
}

// pushCallFrame installs a new frame for closure on co, with its locals
// window starting at base. Returns a stack-overflow RuntimeError if the
// frame stack is already at MaxFrames (spec §7).
func (vm *VM) pushCallFrame(co *Coroutine, closure *ObjClosure, base int) error {
	if co.FrameTop >= MaxFrames {
		return vm.runtimeErrorOn(co, ErrStackOverflow, "stack overflow")
	}
	co.Frames[co.FrameTop] = CallFrame{Closure: closure, Base: base}
	co.FrameTop++
	return nil
}

func (co *Coroutine) frame() *CallFrame { return &co.Frames[co.FrameTop-1] }

// --- active/sleeping list management (spec §4.7) ---

// spliceActive inserts co into the active list immediately before "before"
// (or at the head if before is nil). Used both to seed the initial
// coroutine and to splice a newly spawned async callee immediately ahead of
// its spawner (spec §4.6 Calling convention).
func (vm *VM) spliceActive(co, before *Coroutine) {
	if before == nil {
		co.Next = vm.activeHead
		co.Prev = nil
		if vm.activeHead != nil {
			vm.activeHead.Prev = co
		}
		vm.activeHead = co
		return
	}
	co.Prev = before.Prev
	co.Next = before
	if before.Prev != nil {
		before.Prev.Next = co
	} else {
		vm.activeHead = co
	}
	before.Prev = co
}

// spliceActiveTail appends co at the tail of the active list.
func (vm *VM) spliceActiveTail(co *Coroutine) {
	if vm.activeHead == nil {
		vm.spliceActive(co, nil)
		return
	}
	tail := vm.activeHead
	for tail.Next != nil {
		tail = tail.Next
	}
	co.Prev = tail
	co.Next = nil
	tail.Next = co
}

func (vm *VM) unlinkActive(co *Coroutine) {
	if co.Prev != nil {
		co.Prev.Next = co.Next
	} else if vm.activeHead == co {
		vm.activeHead = co.Next
	}
	if co.Next != nil {
		co.Next.Prev = co.Prev
	}
	co.Prev, co.Next = nil, nil
}

func (vm *VM) pushSleeping(co *Coroutine, deadline int64) {
	co.SleepUntil = deadline
	co.Next = vm.sleepingHead
	co.Prev = nil
	if vm.sleepingHead != nil {
		vm.sleepingHead.Prev = co
	}
	vm.sleepingHead = co
}

func (vm *VM) unlinkSleeping(co *Coroutine) {
	if co.Prev != nil {
		co.Prev.Next = co.Next
	} else if vm.sleepingHead == co {
		vm.sleepingHead = co.Next
	}
	if co.Next != nil {
		co.Next.Prev = co.Prev
	}
	co.Prev, co.Next = nil, nil
}
