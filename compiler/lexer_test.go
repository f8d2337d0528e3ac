package compiler

import "testing"

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	l := NewLexer(src)
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == TokEOF || tok.Kind == TokError {
			return toks
		}
	}
}

func wantKinds(t *testing.T, toks []Token, kinds ...TokenKind) {
	t.Helper()
	if len(toks) != len(kinds) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(kinds), toks)
	}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Fatalf("token %d kind = %d, want %d (lexeme %q)", i, toks[i].Kind, k, toks[i].Lexeme)
		}
	}
}

func TestScanPostfixOperators(t *testing.T) {
	toks := scanAll(t, "i++; j--;")
	wantKinds(t, toks,
		TokIdentifier, TokPlusPlus, TokSemicolon,
		TokIdentifier, TokMinusMinus, TokSemicolon,
		TokEOF)
}

func TestScanKeywordsVsIdentifiers(t *testing.T) {
	toks := scanAll(t, "classy class awaiting await")
	wantKinds(t, toks, TokIdentifier, TokClass, TokIdentifier, TokAwait, TokEOF)
}

func TestStringEscapesAreUnescapedInLexeme(t *testing.T) {
	toks := scanAll(t, `"a\nb\t\"\\\{"`)
	wantKinds(t, toks, TokString, TokEOF)
	if got := toks[0].Lexeme; got != "a\nb\t\"\\{" {
		t.Fatalf("unescaped lexeme = %q, want %q", got, "a\nb\t\"\\{")
	}
}

func TestInvalidEscapeIsErrorToken(t *testing.T) {
	toks := scanAll(t, `"bad \q"`)
	last := toks[len(toks)-1]
	if last.Kind != TokError {
		t.Fatalf("expected an error token for an invalid escape, got kind %d", last.Kind)
	}
}

func TestUnterminatedStringIsErrorToken(t *testing.T) {
	toks := scanAll(t, `"abc`)
	last := toks[len(toks)-1]
	if last.Kind != TokError || last.Lexeme != "unterminated string" {
		t.Fatalf("expected an unterminated-string error token, got %v", last)
	}
}

func TestTemplateSegmentation(t *testing.T) {
	toks := scanAll(t, `"x={n}!"`)
	wantKinds(t, toks, TokTemplateStart, TokIdentifier, TokTemplateEnd, TokEOF)
	if toks[0].Lexeme != "x=" || toks[2].Lexeme != "!" {
		t.Fatalf("template segments = %q / %q, want %q / %q", toks[0].Lexeme, toks[2].Lexeme, "x=", "!")
	}
}

func TestTemplateWithMultipleInterpolations(t *testing.T) {
	toks := scanAll(t, `"a{x}b{y}c"`)
	wantKinds(t, toks,
		TokTemplateStart, TokIdentifier,
		TokTemplateMid, TokIdentifier,
		TokTemplateEnd, TokEOF)
	if toks[2].Lexeme != "b" || toks[4].Lexeme != "c" {
		t.Fatalf("mid/end segments = %q / %q, want b / c", toks[2].Lexeme, toks[4].Lexeme)
	}
}

// TestTemplateExpressionContainingString exercises the re-entrant template
// state: a string literal inside an interpolation must not confuse the
// brace-depth bookkeeping that decides which `}` closes the template.
func TestTemplateExpressionContainingString(t *testing.T) {
	toks := scanAll(t, `"x={"y"}"`)
	wantKinds(t, toks, TokTemplateStart, TokString, TokTemplateEnd, TokEOF)
	if toks[1].Lexeme != "y" {
		t.Fatalf("inner string lexeme = %q, want y", toks[1].Lexeme)
	}
}

func TestLineAndColumnTracking(t *testing.T) {
	toks := scanAll(t, "var x;\nvar y;")
	// tokens: var x ; var y ; EOF
	if toks[0].Loc.Line != 1 || toks[3].Loc.Line != 2 {
		t.Fatalf("line tracking off: %v / %v", toks[0].Loc, toks[3].Loc)
	}
	if toks[4].Loc.Column != 5 {
		t.Fatalf("column of second-line identifier = %d, want 5", toks[4].Loc.Column)
	}
}

func TestNumberScanning(t *testing.T) {
	toks := scanAll(t, "12 3.5 7.")
	// `7.` scans as the number 7 followed by a dot.
	wantKinds(t, toks, TokNumber, TokNumber, TokNumber, TokDot, TokEOF)
	if toks[1].Lexeme != "3.5" {
		t.Fatalf("fractional lexeme = %q, want 3.5", toks[1].Lexeme)
	}
}
