package runtime

import (
	"io"
	"os"
)

// MaxFrames is the maximum call-frame depth of a single coroutine (spec §3:
// "a fixed depth 64").
const MaxFrames = 64

// MaxLocalsPerFrame bounds one frame's local slots (spec §3: "bounded by
// 256").
const MaxLocalsPerFrame = 256

// MaxStack is the total per-coroutine value-stack depth (spec §3:
// "64×256 slots").
const MaxStack = MaxFrames * MaxLocalsPerFrame

// initialGCThreshold and gcGrowthFactor implement spec §4.5's allocation
// accounting: "initial 1 MiB; doubled after each collection".
const initialGCThreshold = 1024 * 1024
const gcGrowthFactor = 2

// VM is the runtime's state, instantiated by New rather than held as a
// package-level singleton (see DESIGN.md's "idiomatic-Go adaptation" note);
// a running program still only ever drives one VM, but nothing prevents a
// test harness from constructing several independent ones.
type VM struct {
	// Coroutine scheduling (spec §4.7).
	current      *Coroutine
	activeHead   *Coroutine
	sleepingHead *Coroutine

	// Globals and string interning (spec §3).
	globals      *HashMap
	strings      *internTable
	initString   *ObjString
	lengthString *ObjString

	// GC state (spec §4.5).
	objects        Obj
	greyStack      []Obj
	pinned         []Obj
	bytesAllocated uint64
	nextGC         uint64
	gcEnabled      bool
	gcStress       bool

	nextClassID uint64

	// nativeSuspended is set by a native (currently only sleep) that hands
	// control to the scheduler itself rather than returning its result
	// directly; callNative checks and clears it to know that co's result has
	// already been (or will be) pushed by whatever step resumes co, even if
	// the scheduler loops back around to co with nothing else to run.
	nativeSuspended bool

	// I/O poll layer (spec §4.8).
	poller          *poller
	outstandingIO   int

	// compilerRoots, when non-nil, returns the in-progress Functions owned
	// by an active compiler, which must be treated as GC roots (spec §4.5:
	// "the compiler chain's current Functions (visible via a hook the
	// compiler exposes)").
	compilerRoots func() []*ObjFunction

	Stdout io.Writer
	Stderr io.Writer
}

// New constructs a VM ready to run compiled Functions.
func New() *VM {
	vm := &VM{
		globals:   NewHashMap(),
		strings:   newInternTable(),
		nextGC:    initialGCThreshold,
		gcEnabled: true,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
	vm.initString = vm.internString("init")
	vm.lengthString = vm.internString("length")
	p, err := newPoller()
	if err == nil {
		vm.poller = p
	}
	vm.RegisterNatives()
	return vm
}

// Close releases the VM's epoll handle, if any.
func (vm *VM) Close() error {
	if vm.poller != nil {
		return vm.poller.close()
	}
	return nil
}

// SetCompilerRoots installs the GC root hook described by spec §4.5. The
// compiler package calls this (or the CLI driver does, on its behalf)
// before compiling so that in-progress Function objects survive a GC
// triggered mid-compilation by an allocation such as string interning.
func (vm *VM) SetCompilerRoots(hook func() []*ObjFunction) {
	vm.compilerRoots = hook
}

// DisableGCStress turns off the "collect before every allocation that grows
// memory" stress mode (spec §4.5). Stress mode is opt-in via EnableGCStress,
// intended for tests that want to flush out GC bugs deterministically.
func (vm *VM) EnableGCStress()  { vm.gcStress = true }
func (vm *VM) DisableGCStress() { vm.gcStress = false }

// Interpret compiles is not the VM's job (that's the compiler package); this
// is the entry point once a script has already been compiled into a root
// Function. It wraps the function in a Closure, installs it as the first
// call frame of a fresh initial coroutine, and runs the bytecode dispatch
// loop to completion (spec §2).
func (vm *VM) Interpret(fn *ObjFunction) error {
	closure := vm.newClosure(fn)
	co := vm.newCoroutine()
	vm.spliceActive(co, nil)
	vm.current = co
	// Slot 0 of the script frame holds the closure itself, the slot the
	// compiler reserves before numbering the script's own locals.
	co.push(ObjVal(closure))
	if err := vm.pushCallFrame(co, closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) newClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{Fn: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	vm.registerObject(c)
	return c
}

// NewFunction allocates a Function object for the compiler package, which
// has no access to the unexported allocator (spec §4.5: "all heap objects
// are allocated by one routine"). Name may be nil for the implicit top-level
// script function.
func (vm *VM) NewFunction(name *ObjString) *ObjFunction {
	fn := &ObjFunction{Name: name}
	vm.registerObject(fn)
	return fn
}
