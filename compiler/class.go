package compiler

import "github.com/loxvm/loxvm/bytecode"

// classDeclaration compiles `class C [< S] { method* }` (spec §4.3, §4.4):
// bind C, then -- if inheriting -- open a scope with a hidden `super` local
// bound to the resolved superclass and emit OpInherit, then compile each
// method body with the class left on the stack as OpMethod's implicit
// receiver. Grounded on original_source/src/compiler.c's classDeclaration.
func (c *Compiler) classDeclaration() {
	c.expect(TokIdentifier, "expected class name")
	className := c.previous
	nameConst := c.identifierConstant(className.Lexeme)
	c.declareLocal(className.Lexeme)

	c.emitOps(bytecode.OpClass, nameConst)
	c.defineVariable(nameConst)

	cc := &classCompiler{enclosing: c.cc}
	c.cc = cc

	if c.match(TokLess) {
		c.expect(TokIdentifier, "expected superclass name")
		if c.previous.Lexeme == className.Lexeme {
			c.errorAtPrevious("a class can't inherit from itself")
		}
		c.namedVariable(c.previous.Lexeme, false)

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className.Lexeme, false)
		c.emitOp(bytecode.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className.Lexeme, false)
	c.expect(TokLeftBrace, "expected '{' before class body")
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		c.method()
	}
	c.expect(TokRightBrace, "expected '}' after class body")
	c.emitOp(bytecode.OpPop) // the class, left on the stack for OpMethod

	if cc.hasSuperclass {
		c.endScope()
	}
	c.cc = cc.enclosing
}

// method compiles one `name(params){body}` inside a class declaration,
// compiling `init` as an Initializer so its implicit return is `this` and an
// explicit `return value;` inside it is rejected (spec §4.3).
func (c *Compiler) method() {
	c.expect(TokIdentifier, "expected method name")
	name := c.previous.Lexeme
	nameConst := c.identifierConstant(name)

	fnType := funcMethod
	if name == "init" {
		fnType = funcInitializer
	}
	c.function(fnType, name)
	c.emitOps(bytecode.OpMethod, nameConst)
}
