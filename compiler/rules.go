package compiler

import (
	"strconv"

	"github.com/loxvm/loxvm/bytecode"
	"github.com/loxvm/loxvm/runtime"
)

// Precedence orders binding strength from loosest to tightest, extending
// original_source/src/compiler.c's Precedence enum with a level for the
// `?:` conditional operator, which binds looser than `or` but tighter than
// assignment (spec §4.2).
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecConditional
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[TokenKind]parseRule

func init() {
	rules = map[TokenKind]parseRule{
		TokLeftParen:    {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: PrecCall},
		TokLeftBracket:  {prefix: (*Compiler).arrayLiteral, infix: (*Compiler).indexExpr, precedence: PrecCall},
		TokDot:          {infix: (*Compiler).dot, precedence: PrecCall},
		TokMinus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: PrecTerm},
		TokPlus:         {infix: (*Compiler).binary, precedence: PrecTerm},
		TokSlash:        {infix: (*Compiler).binary, precedence: PrecFactor},
		TokStar:         {infix: (*Compiler).binary, precedence: PrecFactor},
		TokQuestion:     {infix: (*Compiler).conditional, precedence: PrecConditional},
		TokBang:         {prefix: (*Compiler).unary},
		TokBangEqual:    {infix: (*Compiler).binary, precedence: PrecEquality},
		TokEqualEqual:   {infix: (*Compiler).binary, precedence: PrecEquality},
		TokGreater:      {infix: (*Compiler).binary, precedence: PrecComparison},
		TokGreaterEqual: {infix: (*Compiler).binary, precedence: PrecComparison},
		TokLess:         {infix: (*Compiler).binary, precedence: PrecComparison},
		TokLessEqual:    {infix: (*Compiler).binary, precedence: PrecComparison},
		TokIdentifier:   {prefix: (*Compiler).variable},
		TokString:       {prefix: (*Compiler).stringLiteral},
		TokTemplateStart: {prefix: (*Compiler).templateLiteral},
		TokNumber:       {prefix: (*Compiler).number},
		TokAnd:          {infix: (*Compiler).and_, precedence: PrecAnd},
		TokOr:           {infix: (*Compiler).or_, precedence: PrecOr},
		TokAwait:        {prefix: (*Compiler).awaitExpr},
		TokFalse:        {prefix: (*Compiler).falseLiteral},
		TokNil:          {prefix: (*Compiler).nilLiteral},
		TokTrue:         {prefix: (*Compiler).trueLiteral},
		TokThis:         {prefix: (*Compiler).this_},
		TokSuper:        {prefix: (*Compiler).super_},
	}
}

func getRule(kind TokenKind) parseRule { return rules[kind] }

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

// parsePrecedence is the Pratt parser's core loop (spec §4.2), grounded on
// original_source/src/compiler.c's parsePrecedence generalized with a
// `canAssign` flag so a stray `=` after a non-assignable expression (e.g.
// `1 + 2 = 3`) is caught once, here, rather than in every individual rule.
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.previous.Kind).prefix
	if prefix == nil {
		c.errorAtPrevious("expected expression")
		return
	}
	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Kind).precedence {
		c.advance()
		infix := getRule(c.previous.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(TokEqual) {
		c.errorAtPrevious("invalid assignment target")
	}
}

// --- literals --------------------------------------------------------------

func (c *Compiler) number(canAssign bool) {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.errorAtPrevious("invalid number literal")
		return
	}
	idx := c.emitConstant(runtime.NumberVal(n))
	c.emitOps(bytecode.OpConst, idx)
}

func (c *Compiler) stringLiteral(canAssign bool) {
	idx := c.emitConstant(c.vm.InternString(c.previous.Lexeme))
	c.emitOps(bytecode.OpConst, idx)
}

// templateLiteral compiles a string with `{...}` interpolations into an
// alternating sequence of string-segment and expression pushes collapsed by
// a single n-ary Concat (spec §4.1, §4.2): the lexer has already unescaped
// each literal segment and tracks brace depth so an embedded `}` closes the
// interpolation instead of a block.
func (c *Compiler) templateLiteral(canAssign bool) {
	n := 0
	c.pushStringConstant(c.previous.Lexeme)
	n++

	for {
		c.expression()
		n++
		switch c.current.Kind {
		case TokTemplateMid:
			c.advance()
			c.pushStringConstant(c.previous.Lexeme)
			n++
		case TokTemplateEnd:
			c.advance()
			c.pushStringConstant(c.previous.Lexeme)
			n++
		default:
			c.errorAtCurrent("unterminated string template")
			return
		}
		if c.previous.Kind == TokTemplateEnd {
			break
		}
	}
	c.emitOps(bytecode.OpConcat, byte(n))
}

func (c *Compiler) pushStringConstant(text string) {
	idx := c.emitConstant(c.vm.InternString(text))
	c.emitOps(bytecode.OpConst, idx)
}

func (c *Compiler) nilLiteral(canAssign bool)   { c.emitOp(bytecode.OpNil) }
func (c *Compiler) trueLiteral(canAssign bool)  { c.emitOp(bytecode.OpTrue) }
func (c *Compiler) falseLiteral(canAssign bool) { c.emitOp(bytecode.OpFalse) }

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.expect(TokRightParen, "expected ')' after expression")
}

// --- operators ---------------------------------------------------------

func (c *Compiler) unary(canAssign bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case TokMinus:
		c.emitOp(bytecode.OpNeg)
	case TokBang:
		c.emitOp(bytecode.OpNot)
	}
}

// awaitExpr compiles `await expr` as a prefix unary operator at PrecUnary
// (spec §4.7): the operand is pushed, then OpAwait suspends the current
// coroutine until the Promise it names settles.
func (c *Compiler) awaitExpr(canAssign bool) {
	if !c.fs.inAsync() {
		c.errorAtPrevious("can't use 'await' outside of an async function")
	}
	c.parsePrecedence(PrecUnary)
	c.emitOp(bytecode.OpAwait)
}

func (c *Compiler) binary(canAssign bool) {
	opKind := c.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedence(rule.precedence + 1)
	switch opKind {
	case TokPlus:
		c.emitOp(bytecode.OpAdd)
	case TokMinus:
		c.emitOp(bytecode.OpSub)
	case TokStar:
		c.emitOp(bytecode.OpMul)
	case TokSlash:
		c.emitOp(bytecode.OpDiv)
	case TokBangEqual:
		c.emitOp(bytecode.OpEqual)
		c.emitOp(bytecode.OpNot)
	case TokEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case TokGreater:
		c.emitOp(bytecode.OpGreater)
	case TokGreaterEqual:
		c.emitOp(bytecode.OpLess)
		c.emitOp(bytecode.OpNot)
	case TokLess:
		c.emitOp(bytecode.OpLess)
	case TokLessEqual:
		c.emitOp(bytecode.OpGreater)
		c.emitOp(bytecode.OpNot)
	}
}

func (c *Compiler) and_(canAssign bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(canAssign bool) {
	endJump := c.emitJump(bytecode.OpJumpIfTrue)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

// conditional compiles `cond ? then : else` (spec §4.2) with the same
// falsey-jump-and-pop shape as `if`, so each arm leaves the stack exactly
// one slot deeper than before the condition was pushed.
func (c *Compiler) conditional(canAssign bool) {
	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(PrecConditional)

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	c.expect(TokColon, "expected ':' in conditional expression")
	c.parsePrecedence(PrecConditional)
	c.patchJump(elseJump)
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitOps(bytecode.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	argCount := 0
	if !c.check(TokRightParen) {
		for {
			c.expression()
			if argCount == 255 {
				c.errorAtPrevious("can't have more than 255 arguments")
			}
			argCount++
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightParen, "expected ')' after arguments")
	return byte(argCount)
}

// dot compiles `.name`, `.name(...)`, and `.name =`, fusing the get+call
// pair into OpInvoke (spec §4.4, §4.6). `.name++`/`.name--` is a compile
// error rather than a fused
// field-increment instruction: the ISA has no stack "dig" primitive to pull
// the receiver back under the incremented value without one.
func (c *Compiler) dot(canAssign bool) {
	c.expect(TokIdentifier, "expected property name after '.'")
	name := c.previous.Lexeme
	nameConst := c.identifierConstant(name)

	switch {
	case canAssign && c.match(TokEqual):
		c.expression()
		c.emitOps(bytecode.OpSetField, nameConst)
	case c.match(TokLeftParen):
		argCount := c.argumentList()
		cacheIdx := c.chunk().AddCache()
		c.emitInvoke(nameConst, argCount, cacheIdx)
	case c.check(TokPlusPlus), c.check(TokMinusMinus):
		c.advance()
		c.errorAtPrevious("invalid increment target")
	default:
		c.emitOps(bytecode.OpGetField, nameConst)
	}
}

func (c *Compiler) emitInvoke(nameConst, argCount byte, cacheIdx int) {
	c.emitOp(bytecode.OpInvoke)
	c.emitByte(nameConst)
	c.emitByte(argCount)
	c.emitByte(c.checkCacheIndex(cacheIdx))
}

func (c *Compiler) emitSuperInvoke(nameConst, argCount byte, cacheIdx int) {
	c.emitOp(bytecode.OpSuperInvoke)
	c.emitByte(nameConst)
	c.emitByte(argCount)
	c.emitByte(c.checkCacheIndex(cacheIdx))
}

// checkCacheIndex bounds an inline-cache slot index to what the one-byte
// operand can address.
func (c *Compiler) checkCacheIndex(idx int) byte {
	if idx > 255 {
		c.errorAtPrevious("too many method call sites in one function")
		return 255
	}
	return byte(idx)
}

// arrayLiteral compiles `[a, b, c]` (spec §4.2).
func (c *Compiler) arrayLiteral(canAssign bool) {
	n := 0
	if !c.check(TokRightBracket) {
		for {
			c.expression()
			n++
			if n > 255 {
				c.errorAtPrevious("too many array elements")
			}
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightBracket, "expected ']' after array elements")
	c.emitOps(bytecode.OpArray, byte(n))
}

// indexExpr compiles `arr[i]`, `arr[i] =`, and `arr[i]++`/`--` (spec §4.2,
// §9): the array and index values are left on the stack for whichever of
// ArrayGet/ArraySet/ArrayIncr/ArrayDecr applies, so no prior element load is
// needed (or wasted) for the assignment/increment forms.
func (c *Compiler) indexExpr(canAssign bool) {
	c.expression()
	c.expect(TokRightBracket, "expected ']' after index")
	switch {
	case canAssign && c.match(TokEqual):
		c.expression()
		c.emitOp(bytecode.OpArraySet)
	case c.match(TokPlusPlus):
		c.emitOp(bytecode.OpArrayIncr)
	case c.match(TokMinusMinus):
		c.emitOp(bytecode.OpArrayDecr)
	default:
		c.emitOp(bytecode.OpArrayGet)
	}
}

// --- names ---------------------------------------------------------------

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

// namedVariable resolves name to a local, upvalue, or global slot and
// compiles whichever of plain read, `=` assignment, or postfix `++`/`--`
// follows (spec §4.2, §4.3, §9). Postfix is checked unconditionally (not
// gated on canAssign) since `x++` is a valid subexpression anywhere a
// primary expression is, unlike a bare `=`.
func (c *Compiler) namedVariable(name string, canAssign bool) {
	getOp, setOp, arg := c.resolveNamed(name)
	switch {
	case canAssign && c.match(TokEqual):
		c.expression()
		c.emitOps(setOp, arg)
	case c.match(TokPlusPlus):
		c.emitOps(getOp, arg)
		c.emitOp(bytecode.OpDup)
		c.emitOp(bytecode.OpIncr)
		c.emitOps(setOp, arg)
		c.emitOp(bytecode.OpPop)
	case c.match(TokMinusMinus):
		c.emitOps(getOp, arg)
		c.emitOp(bytecode.OpDup)
		c.emitOp(bytecode.OpDecr)
		c.emitOps(setOp, arg)
		c.emitOp(bytecode.OpPop)
	default:
		c.emitOps(getOp, arg)
	}
}

func (c *Compiler) resolveNamed(name string) (getOp, setOp bytecode.Op, arg byte) {
	if slot := c.fs.resolveLocal(name); slot != -1 {
		if c.fs.locals[slot].depth == depthUninitialized {
			c.errorAtPrevious("can't read local variable in its own initializer")
		}
		return bytecode.OpGetLocal, bytecode.OpSetLocal, byte(slot)
	}
	if up := c.fs.resolveUpvalue(name); up != -1 {
		return bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, byte(up)
	}
	return bytecode.OpGetGlobal, bytecode.OpSetGlobal, c.identifierConstant(name)
}

func (c *Compiler) this_(canAssign bool) {
	if c.cc == nil {
		c.errorAtPrevious("can't use 'this' outside of a class")
		return
	}
	c.namedVariable("this", false)
}

// super_ compiles `super.method` and `super.method(...)` (spec §4.4),
// resolving the hidden `super` local that classDeclaration declares in the
// scope wrapping every method of a class with a superclass.
func (c *Compiler) super_(canAssign bool) {
	if c.cc == nil {
		c.errorAtPrevious("can't use 'super' outside of a class")
	} else if !c.cc.hasSuperclass {
		c.errorAtPrevious("can't use 'super' in a class with no superclass")
	}
	c.expect(TokDot, "expected '.' after 'super'")
	c.expect(TokIdentifier, "expected superclass method name")
	nameConst := c.identifierConstant(c.previous.Lexeme)

	c.namedVariable("this", false)
	if c.match(TokLeftParen) {
		argCount := c.argumentList()
		c.namedVariable("super", false)
		cacheIdx := c.chunk().AddCache()
		c.emitSuperInvoke(nameConst, argCount, cacheIdx)
		return
	}
	c.namedVariable("super", false)
	c.emitOps(bytecode.OpGetSuper, nameConst)
}
