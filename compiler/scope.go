package compiler

import (
	"github.com/loxvm/loxvm/bytecode"
	"github.com/loxvm/loxvm/runtime"
)

// FunctionType distinguishes the handful of compile-time contexts a
// function body can be compiled in, mirroring
// original_source/src/compiler.c's single-Compiler struct generalized to a
// stack of them (spec §4.3: nested function/method compilation).
type FunctionType int

const (
	funcScript FunctionType = iota
	funcFunction
	funcAsyncFunction
	funcMethod
	funcInitializer
)

const depthUninitialized = -1

// maxLocals/maxUpvalues bound a single function's local-variable and
// upvalue tables to what fits in a one-byte operand (spec §7: "too many
// locals (>256) in one function" / "too many upvalues (>256)").
const maxLocals = 256
const maxUpvalues = 256

type localVar struct {
	name     string
	depth    int
	captured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// loopCtx records enough state to compile `continue` (spec §4.3): the
// bytecode offset continue jumps back to (the condition test for a while
// loop, the increment clause for a for loop), and the locals count at loop
// entry so continue can discard body locals before jumping back.
type loopCtx struct {
	continueTarget int
	localBase      int
}

// breakCtx records the patch list for `break` (spec §4.3), shared between
// loops and switch statements: a forward jump to one, patched once the
// construct finishes compiling, plus the locals count the jump target
// expects so break can discard deeper locals first.
type breakCtx struct {
	jumps     []int
	localBase int
}

// funcState is one function body's compile-time scope: its in-progress
// Function object, locals, upvalues, and loop/break bookkeeping. A stack of
// these (enclosing) lets the parser generalize over nested function and
// method declarations (spec §4.3, mirrors compiler.c's single Compiler
// generalized to a chain).
type funcState struct {
	enclosing *funcState
	fn        *runtime.ObjFunction
	fnType    FunctionType

	locals     []localVar
	scopeDepth int
	upvalues   []upvalueRef

	loops   []*loopCtx
	breaks  []*breakCtx
}

func newFuncState(vm *runtime.VM, enclosing *funcState, fnType FunctionType, name *runtime.ObjString) *funcState {
	fs := &funcState{enclosing: enclosing, fnType: fnType, fn: vm.NewFunction(name)}
	// Slot 0 is reserved for the receiver in methods/initializers (named
	// "this" so `this` resolves to it) and for the callee itself otherwise,
	// matching the Call n calling convention's window layout (spec §4.6).
	slotName := ""
	if fnType == funcMethod || fnType == funcInitializer {
		slotName = "this"
	}
	fs.locals = append(fs.locals, localVar{name: slotName, depth: 0})
	if fnType == funcAsyncFunction {
		fs.fn.IsAsync = true
	}
	return fs
}

func (fs *funcState) beginScope() { fs.scopeDepth++ }

// inAsync reports whether `await`/`yield` are valid in the current function
// body (spec §4.7, §7: "await/yield outside async" is a compile-time
// error). A function nested inside an async function is not itself async
// unless declared with `async fun`, so this checks only fs itself.
func (fs *funcState) inAsync() bool { return fs.fnType == funcAsyncFunction }

// endScope pops every local declared in the scope being left, emitting
// CloseUpvalue for ones captured by a nested closure; consecutive
// non-captured locals collapse into a single PopN (spec §4.3).
func (c *Compiler) endScope() {
	fs := c.fs
	fs.scopeDepth--
	run := 0
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		if fs.locals[len(fs.locals)-1].captured {
			c.flushPops(run)
			run = 0
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			run++
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
	c.flushPops(run)
}

func (c *Compiler) flushPops(n int) {
	switch {
	case n == 1:
		c.emitOp(bytecode.OpPop)
	case n > 1:
		c.emitOps(bytecode.OpPopN, byte(n))
	}
}

// discardLocals emits the pop/close sequence for every local above base
// without removing them from the compile-time table. break and continue use
// it to unwind the value stack before jumping out of scopes whose endScope
// still runs on the fall-through path.
func (c *Compiler) discardLocals(base int) {
	fs := c.fs
	run := 0
	for i := len(fs.locals) - 1; i >= base; i-- {
		if fs.locals[i].captured {
			c.flushPops(run)
			run = 0
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			run++
		}
	}
	c.flushPops(run)
}

func (fs *funcState) resolveLocal(name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue walks the enclosing funcState chain to find name as a local
// of some ancestor, threading an upvalue descriptor through every
// intervening function (spec §4.6 Closure: "is_local,index pairs", one per
// level between the defining scope and the function capturing it).
func (fs *funcState) resolveUpvalue(name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := fs.enclosing.resolveLocal(name); local != -1 {
		fs.enclosing.locals[local].captured = true
		return fs.addUpvalue(byte(local), true)
	}
	if up := fs.enclosing.resolveUpvalue(name); up != -1 {
		return fs.addUpvalue(byte(up), false)
	}
	return -1
}

func (fs *funcState) addUpvalue(index byte, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxUpvalues {
		return len(fs.upvalues) - 1
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fs.fn.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

func (c *Compiler) declareLocal(name string) {
	fs := c.fs
	if fs.scopeDepth == 0 {
		return
	}
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.depth != -1 && l.depth < fs.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAtPrevious("redefinition of a local variable '" + name + "'")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	fs := c.fs
	if len(fs.locals) >= maxLocals {
		c.errorAtPrevious("too many local variables in one scope")
		return
	}
	fs.locals = append(fs.locals, localVar{name: name, depth: depthUninitialized})
}

func (c *Compiler) markInitialized() {
	fs := c.fs
	if fs.scopeDepth == 0 {
		return
	}
	fs.locals[len(fs.locals)-1].depth = fs.scopeDepth
}
