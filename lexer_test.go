package main

import "testing"

func newTestLexer(t *testing.T, src string) *Lexer {
	t.Helper()
	c := newCompiler()
	path := writeTempSource(t, src)
	lex, err := newLexer(c, path)
	if err != nil {
		t.Fatalf("newLexer: %v", err)
	}
	t.Cleanup(lex.close)
	return lex
}

func TestLexerScansKeywordsAndIdents(t *testing.T) {
	lex := newTestLexer(t, "int main")
	tok := lex.next()
	if tok.Kind != TokKeyword || tok.Kw != KwInt {
		t.Fatalf("expected keyword int, got %+v", tok)
	}
	tok = lex.next()
	if tok.Kind != TokIdent || tok.Ident != "main" {
		t.Fatalf("expected ident main, got %+v", tok)
	}
	tok = lex.next()
	if tok.Kind != TokEOF {
		t.Fatalf("expected eof, got %+v", tok)
	}
}

func TestLexerScansDecimalHexOctal(t *testing.T) {
	lex := newTestLexer(t, "42 0x2a 052")
	for _, want := range []int64{42, 42, 42} {
		tok := lex.next()
		if tok.Kind != TokNumber || tok.IVal != want {
			t.Errorf("expected number %d, got %+v", want, tok)
		}
	}
}

func TestLexerScansStringLiteralWithEscapes(t *testing.T) {
	lex := newTestLexer(t, `"a\nb"`)
	tok := lex.next()
	if tok.Kind != TokString {
		t.Fatalf("expected string token, got %+v", tok)
	}
	if tok.Str != "a\nb" {
		t.Errorf("expected %q, got %q", "a\nb", tok.Str)
	}
}

func TestLexerDisambiguatesMultiCharOperators(t *testing.T) {
	cases := []struct {
		src  string
		want Punct
	}{
		{"==", PEq},
		{"=", PAssign},
		{"<=", PLe},
		{"<", PLt},
		{"<<", PShl},
		{"<<=", PShlAssign},
		{"&&", PAndAnd},
		{"&", PAmp},
		{"++", PIncr},
		{"+", PPlus},
		{"+=", PAddAssign},
		{"->", PArrow},
		{"-", PMinus},
	}
	for _, tc := range cases {
		lex := newTestLexer(t, tc.src)
		tok := lex.next()
		if tok.Kind != TokPunct || tok.Punct != tc.want {
			t.Errorf("%q: expected punct %d, got %+v", tc.src, tc.want, tok)
		}
	}
}

func TestLexerSkipsComments(t *testing.T) {
	lex := newTestLexer(t, "/* comment */ int // trailing\nx")
	tok := lex.next()
	if tok.Kind != TokKeyword || tok.Kw != KwInt {
		t.Fatalf("expected int after block comment, got %+v", tok)
	}
	tok = lex.next()
	if tok.Kind != TokIdent || tok.Ident != "x" {
		t.Fatalf("expected ident x after line comment, got %+v", tok)
	}
}

func TestLexerTracksLineNumbers(t *testing.T) {
	lex := newTestLexer(t, "int\nmain")
	first := lex.next()
	second := lex.next()
	if second.Line <= first.Line {
		t.Errorf("expected line to advance across newline: %d vs %d", first.Line, second.Line)
	}
}
