package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loxvm/loxvm/bytecode"
	"github.com/loxvm/loxvm/runtime"
)

// CompileError reports every diagnostic collected during a failed
// compilation (spec §4.1's panic-mode recovery: one bad token should not
// stop the compiler from finding the next ten). Mirrors
// original_source/src/compiler.c's approach of continuing after an error and
// synchronizing at the next statement boundary, generalized to collect all
// the resulting messages rather than printing them as they're found.
type CompileError struct {
	Diags []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Diags, "\n")
}

// classCompiler tracks the enclosing chain of class bodies being compiled,
// so `super` can be rejected outside a class with a superclass and nested
// class declarations resolve `this`/`super` to the innermost class (spec
// §4.4).
type classCompiler struct {
	enclosing      *classCompiler
	hasSuperclass  bool
}

// Compiler turns one source string into a runtime.ObjFunction via a
// single-pass Pratt parser (spec §4.1, §4.3), grounded on
// original_source/src/compiler.c's Parser/Compiler pair generalized with a
// funcState stack for nested functions/methods and a classCompiler stack for
// nested classes.
type Compiler struct {
	vm  *runtime.VM
	lex *Lexer

	previous Token
	current  Token

	hadError  bool
	panicking bool
	diags     []string

	fs *funcState
	cc *classCompiler
}

// Compile compiles source into a top-level script Function ready for
// runtime.VM.Interpret. It installs a GC-root hook for the duration of
// compilation (spec §4.5: in-progress Functions must survive a GC triggered
// by string interning mid-compile) and clears it before returning.
func Compile(vm *runtime.VM, source string) (*runtime.ObjFunction, error) {
	c := &Compiler{vm: vm, lex: NewLexer(source)}
	c.fs = newFuncState(vm, nil, funcScript, nil)

	vm.SetCompilerRoots(c.gcRoots)
	defer vm.SetCompilerRoots(nil)

	c.advance()
	for !c.match(TokEOF) {
		c.declaration()
	}
	fn := c.endCompiler()

	if c.hadError {
		return nil, &CompileError{Diags: c.diags}
	}
	return fn, nil
}

// gcRoots returns every Function currently under construction, innermost
// first, for the GC root hook installed by Compile.
func (c *Compiler) gcRoots() []*runtime.ObjFunction {
	var roots []*runtime.ObjFunction
	for fs := c.fs; fs != nil; fs = fs.enclosing {
		roots = append(roots, fs.fn)
	}
	return roots
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.Next()
		if c.current.Kind != TokError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(kind TokenKind) bool { return c.current.Kind == kind }

func (c *Compiler) match(kind TokenKind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) expect(kind TokenKind, msg string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

// --- diagnostics --------------------------------------------------------

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) errorAtPrevious(msg string) { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok Token, msg string) {
	if c.panicking {
		return
	}
	c.panicking = true
	c.hadError = true
	c.diags = append(c.diags, fmt.Sprintf("[ERROR] %s at %d:%d", msg, tok.Loc.Line, tok.Loc.Column))
}

// synchronize discards tokens until a likely statement boundary, so one
// error produces one diagnostic instead of a cascade (spec §4.1).
func (c *Compiler) synchronize() {
	c.panicking = false
	for c.current.Kind != TokEOF {
		if c.previous.Kind == TokSemicolon {
			return
		}
		switch c.current.Kind {
		case TokClass, TokFun, TokVar, TokFor, TokIf, TokWhile, TokPrint, TokReturn, TokSwitch, TokAsync, TokYield:
			return
		}
		c.advance()
	}
}

// --- emit helpers --------------------------------------------------------

func (c *Compiler) chunk() *bytecode.Chunk { return &c.fs.fn.Chunk }

func (c *Compiler) loc() bytecode.Loc { return c.previous.Loc }

func (c *Compiler) emitByte(b byte) { c.chunk().Write(b, c.loc()) }
func (c *Compiler) emitOp(op bytecode.Op) { c.chunk().WriteOp(op, c.loc()) }
func (c *Compiler) emitOps(op bytecode.Op, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitConstant(v any) byte {
	idx, ok := c.chunk().AddConstant(v)
	if !ok {
		c.errorAtPrevious("too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitJump(op bytecode.Op) int { return c.chunk().WriteJump(op, c.loc()) }

func (c *Compiler) patchJump(offset int) {
	if !c.chunk().PatchJump(offset) {
		c.errorAtPrevious("jump distance too large")
	}
}

func (c *Compiler) emitLoop(loopStart int) {
	if !c.chunk().WriteLoop(loopStart, c.loc()) {
		c.errorAtPrevious("loop body too large")
	}
}

func (c *Compiler) emitReturn() {
	if c.fs.fnType == funcInitializer {
		c.emitOps(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) endCompiler() *runtime.ObjFunction {
	c.emitReturn()
	fn := c.fs.fn
	c.fs = c.fs.enclosing
	return fn
}

// --- scope helpers wired into statements --------------------------------

func (c *Compiler) beginScope() { c.fs.beginScope() }

// identifierConstant interns name and stores it as a chunk constant,
// returning its index (spec §4.1: global/field/method names live in the
// constant pool as strings).
func (c *Compiler) identifierConstant(name string) byte {
	return c.emitConstant(c.vm.InternString(name))
}

// parseVariable consumes an identifier and either declares it as a local
// (if inside a scope) or returns its global-name constant index.
func (c *Compiler) parseVariable(msg string) byte {
	c.expect(TokIdentifier, msg)
	name := c.previous.Lexeme
	c.declareLocal(name)
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(name)
}

func (c *Compiler) defineVariable(global byte) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOps(bytecode.OpDefineGlobal, global)
}

// --- declarations --------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(TokClass):
		c.classDeclaration()
	case c.match(TokFun):
		c.funDeclaration(funcFunction)
	case c.match(TokAsync):
		c.expect(TokFun, "expected 'fun' after 'async'")
		c.funDeclaration(funcAsyncFunction)
	case c.match(TokVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicking {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("expected variable name")
	if c.match(TokEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.expect(TokSemicolon, "expected ';' after variable declaration")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration(fnType FunctionType) {
	global := c.parseVariable("expected function name")
	c.markInitialized()
	c.function(fnType, c.previous.Lexeme)
	c.defineVariable(global)
}

// function compiles a function's parameter list and body into its own
// Chunk, then emits OpClosure in the enclosing function to capture its
// upvalues (spec §4.3, §4.6).
func (c *Compiler) function(fnType FunctionType, name string) {
	parent := c.fs
	c.fs = newFuncState(c.vm, parent, fnType, c.vm.InternString(name))
	c.beginScope()

	c.expect(TokLeftParen, "expected '(' after function name")
	if !c.check(TokRightParen) {
		for {
			c.fs.fn.Arity++
			if c.fs.fn.Arity > 255 {
				c.errorAtCurrent("can't have more than 255 parameters")
			}
			paramConst := c.parseVariable("expected parameter name")
			c.defineVariable(paramConst)
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightParen, "expected ')' after parameters")
	c.expect(TokLeftBrace, "expected '{' before function body")
	c.block()

	upvalues := c.fs.upvalues
	fn := c.endCompiler()

	idx, ok := parent.fn.Chunk.AddConstant(fn)
	if !ok {
		c.errorAtPrevious("too many constants in one chunk")
	}
	parent.fn.Chunk.WriteOp(bytecode.OpClosure, c.loc())
	parent.fn.Chunk.Write(byte(idx), c.loc())
	for _, u := range upvalues {
		b := byte(0)
		if u.isLocal {
			b = 1
		}
		parent.fn.Chunk.Write(b, c.loc())
		parent.fn.Chunk.Write(u.index, c.loc())
	}
}

func (c *Compiler) block() {
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		c.declaration()
	}
	c.expect(TokRightBrace, "expected '}' after block")
}

// --- statements ------------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(TokPrint):
		c.printStatement()
	case c.match(TokIf):
		c.ifStatement()
	case c.match(TokReturn):
		c.returnStatement()
	case c.match(TokWhile):
		c.whileStatement()
	case c.match(TokFor):
		c.forStatement()
	case c.match(TokSwitch):
		c.switchStatement()
	case c.match(TokBreak):
		c.breakStatement()
	case c.match(TokContinue):
		c.continueStatement()
	case c.match(TokYield):
		c.yieldStatement()
	case c.match(TokLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.expect(TokSemicolon, "expected ';' after value")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.expect(TokSemicolon, "expected ';' after expression")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.expect(TokLeftParen, "expected '(' after 'if'")
	c.expression()
	c.expect(TokRightParen, "expected ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(TokElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	base := len(c.fs.locals)
	c.fs.loops = append(c.fs.loops, &loopCtx{continueTarget: loopStart, localBase: base})
	c.fs.breaks = append(c.fs.breaks, &breakCtx{localBase: base})

	c.expect(TokLeftParen, "expected '(' after 'while'")
	c.expression()
	c.expect(TokRightParen, "expected ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
	c.patchBreaks()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.expect(TokLeftParen, "expected '(' after 'for'")

	switch {
	case c.match(TokSemicolon):
		// no initializer
	case c.match(TokVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(TokSemicolon) {
		c.expression()
		c.expect(TokSemicolon, "expected ';' after loop condition")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.match(TokRightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.expect(TokRightParen, "expected ')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	}

	base := len(c.fs.locals)
	c.fs.loops = append(c.fs.loops, &loopCtx{continueTarget: loopStart, localBase: base})
	c.fs.breaks = append(c.fs.breaks, &breakCtx{localBase: base})

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.patchBreaks()
	c.endScope()
}

// patchBreaks pops the innermost loop/switch context and patches every
// break jump registered against it to land here.
func (c *Compiler) patchBreaks() {
	bc := c.fs.breaks[len(c.fs.breaks)-1]
	c.fs.breaks = c.fs.breaks[:len(c.fs.breaks)-1]
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
	for _, j := range bc.jumps {
		c.patchJump(j)
	}
}

func (c *Compiler) breakStatement() {
	if len(c.fs.breaks) == 0 {
		c.errorAtPrevious("'break' outside of a loop or switch")
	} else {
		bc := c.fs.breaks[len(c.fs.breaks)-1]
		c.discardLocals(bc.localBase)
		bc.jumps = append(bc.jumps, c.emitJump(bytecode.OpJump))
	}
	c.expect(TokSemicolon, "expected ';' after 'break'")
}

// yieldStatement compiles `yield;` (spec §4.7, §6): suspends the current
// coroutine, moving it to the tail of the active list, with no value
// produced or consumed.
func (c *Compiler) yieldStatement() {
	if !c.fs.inAsync() {
		c.errorAtPrevious("can't use 'yield' outside of an async function")
	}
	c.expect(TokSemicolon, "expected ';' after 'yield'")
	c.emitOp(bytecode.OpYield)
}

func (c *Compiler) continueStatement() {
	if len(c.fs.loops) == 0 {
		c.errorAtPrevious("'continue' outside of a loop")
	} else {
		lc := c.fs.loops[len(c.fs.loops)-1]
		c.discardLocals(lc.localBase)
		c.emitLoop(lc.continueTarget)
	}
	c.expect(TokSemicolon, "expected ';' after 'continue'")
}

// maxSwitchCases bounds a single switch statement (spec §4.3: "Maximum
// cases per switch: 128").
const maxSwitchCases = 128

// caseConstant compiles a `case` value, restricted to the constant-expression
// grammar of spec §4.3: a literal nil/true/false/number/string, or a
// negated number literal. Anything else is a compile error rather than a
// silently-accepted general expression.
func (c *Compiler) caseConstant() {
	switch {
	case c.match(TokNil):
		c.emitOp(bytecode.OpNil)
	case c.match(TokTrue):
		c.emitOp(bytecode.OpTrue)
	case c.match(TokFalse):
		c.emitOp(bytecode.OpFalse)
	case c.match(TokNumber):
		c.number(false)
	case c.match(TokString):
		c.stringLiteral(false)
	case c.match(TokMinus):
		c.expect(TokNumber, "expected number after '-' in case value")
		n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
		if err != nil {
			c.errorAtPrevious("invalid number literal")
			return
		}
		idx := c.emitConstant(runtime.NumberVal(-n))
		c.emitOps(bytecode.OpConst, idx)
	default:
		c.errorAtCurrent("expected a constant expression in case value")
	}
}

// switchStatement evaluates the subject into a hidden local and chains each
// case as an equality test against it, falling through to `default` (spec
// §4.3: no fallthrough between arms; `break` exits the switch early).
func (c *Compiler) switchStatement() {
	c.expect(TokLeftParen, "expected '(' after 'switch'")
	c.expression()
	c.expect(TokRightParen, "expected ')' after switch subject")
	subjectSlot := byte(len(c.fs.locals))
	c.fs.locals = append(c.fs.locals, localVar{name: "", depth: c.fs.scopeDepth})

	c.fs.breaks = append(c.fs.breaks, &breakCtx{localBase: len(c.fs.locals)})
	c.expect(TokLeftBrace, "expected '{' before switch body")

	var nextCaseJump = -1
	sawDefault := false
	caseCount := 0
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		if nextCaseJump != -1 {
			c.patchJump(nextCaseJump)
			c.emitOp(bytecode.OpPop)
			nextCaseJump = -1
		}
		switch {
		case c.match(TokCase):
			caseCount++
			if caseCount > maxSwitchCases {
				c.errorAtPrevious("too many cases in one switch")
			}
			c.emitOps(bytecode.OpGetLocal, subjectSlot)
			c.caseConstant()
			c.emitOp(bytecode.OpEqual)
			c.expect(TokColon, "expected ':' after case value")
			nextCaseJump = c.emitJump(bytecode.OpJumpIfFalse)
			c.emitOp(bytecode.OpPop)
			c.caseBody()
			bc := c.fs.breaks[len(c.fs.breaks)-1]
			bc.jumps = append(bc.jumps, c.emitJump(bytecode.OpJump))
		case c.match(TokDefault):
			if sawDefault {
				c.errorAtPrevious("multiple 'default' arms in one switch")
			}
			sawDefault = true
			c.expect(TokColon, "expected ':' after 'default'")
			c.caseBody()
		default:
			c.errorAtCurrent("expected 'case' or 'default'")
			c.advance()
		}
	}
	if nextCaseJump != -1 {
		c.patchJump(nextCaseJump)
		c.emitOp(bytecode.OpPop)
	}
	c.expect(TokRightBrace, "expected '}' after switch body")

	bc := c.fs.breaks[len(c.fs.breaks)-1]
	c.fs.breaks = c.fs.breaks[:len(c.fs.breaks)-1]
	for _, j := range bc.jumps {
		c.patchJump(j)
	}

	c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	c.emitOp(bytecode.OpPop)
}

// caseBody compiles the statements following a `case ... :` or `default:`
// until the next `case`/`default`/`}` at the switch's own brace level. Each
// arm gets its own scope so locals declared in one arm do not widen the
// stack window the other arms (and the switch's exit) expect.
func (c *Compiler) caseBody() {
	c.beginScope()
	for !c.check(TokCase) && !c.check(TokDefault) && !c.check(TokRightBrace) && !c.check(TokEOF) {
		c.declaration()
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.fs.fnType == funcScript {
		c.errorAtPrevious("can't return from top-level code")
	}
	if c.match(TokSemicolon) {
		c.emitReturn()
		return
	}
	if c.fs.fnType == funcInitializer {
		c.errorAtPrevious("can't return a value from an initializer")
	}
	c.expression()
	c.expect(TokSemicolon, "expected ';' after return value")
	c.emitOp(bytecode.OpReturn)
}
