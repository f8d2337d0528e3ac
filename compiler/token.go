// Package compiler implements the lexer and single-pass Pratt-parsing
// compiler that turn source text into a runtime.ObjFunction (spec §4.1,
// §4.3). It depends on runtime for the Value/Object types it emits into a
// chunk's constant pool, and on bytecode for the instruction set.
package compiler

import "github.com/loxvm/loxvm/bytecode"

// TokenKind enumerates every lexical token of spec §4.1, extending
// original_source/src/lexer.h's TokenType with switch/break/continue,
// async/await, array brackets, and template-string delimiters.
type TokenKind int

const (
	TokLeftParen TokenKind = iota
	TokRightParen
	TokLeftBrace
	TokRightBrace
	TokLeftBracket
	TokRightBracket
	TokComma
	TokDot
	TokPlus
	TokPlusPlus
	TokMinus
	TokMinusMinus
	TokSemicolon
	TokColon
	TokSlash
	TokStar
	TokQuestion
	TokBang
	TokBangEqual
	TokEqual
	TokEqualEqual
	TokGreater
	TokGreaterEqual
	TokLess
	TokLessEqual

	TokIdentifier
	TokString
	TokTemplateStart
	TokTemplateMid
	TokTemplateEnd
	TokNumber

	TokAnd
	TokAsync
	TokAwait
	TokBreak
	TokCase
	TokClass
	TokContinue
	TokDefault
	TokElse
	TokFalse
	TokFor
	TokFun
	TokIf
	TokNil
	TokOr
	TokPrint
	TokReturn
	TokSuper
	TokSwitch
	TokThis
	TokTrue
	TokVar
	TokWhile
	TokYield

	TokError
	TokEOF
)

var keywords = map[string]TokenKind{
	"and":      TokAnd,
	"async":    TokAsync,
	"await":    TokAwait,
	"break":    TokBreak,
	"case":     TokCase,
	"class":    TokClass,
	"continue": TokContinue,
	"default":  TokDefault,
	"else":     TokElse,
	"false":    TokFalse,
	"for":      TokFor,
	"fun":      TokFun,
	"if":       TokIf,
	"nil":      TokNil,
	"or":       TokOr,
	"print":    TokPrint,
	"return":   TokReturn,
	"super":    TokSuper,
	"switch":   TokSwitch,
	"this":     TokThis,
	"true":     TokTrue,
	"var":      TokVar,
	"while":    TokWhile,
	"yield":    TokYield,
}

// Token is one lexical unit: a kind, its source text, and the location
// blamed for diagnostics (spec §4.1, mirrors original_source/src/lexer.h's
// Token). Lexeme is the token's source text; string and template-segment
// tokens carry their unescaped contents instead, and error tokens carry the
// error message.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Loc    bytecode.Loc
}
