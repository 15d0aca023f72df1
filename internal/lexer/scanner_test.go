package lexer

import "testing"

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	s := New(src, "=test", nil)
	var toks []Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Type == TokEOF || tok.Type == TokError {
			return toks
		}
	}
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll(t, "let x final y fn foo")
	want := []TokenType{TokLet, TokIdent, TokFinal, TokIdent, TokFn, TokIdent, TokEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d = %v, want %v", i, toks[i].Type, w)
		}
	}
}

func TestScanOperators(t *testing.T) {
	toks := scanAll(t, "** // == != <= >= << >> => ..")
	want := []TokenType{TokCaret, TokSlash2, TokEqEq, TokBangEq, TokLE, TokGE, TokShl, TokShr, TokArrow, TokDotDot, TokEOF}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d = %v, want %v", i, toks[i].Type, w)
		}
	}
}

func TestScanIntegerLiteral(t *testing.T) {
	toks := scanAll(t, "42")
	if toks[0].Type != TokInt || toks[0].Value.(int64) != 42 {
		t.Errorf("got %v %v, want TokInt 42", toks[0].Type, toks[0].Value)
	}
}

func TestScanFloatLiteral(t *testing.T) {
	toks := scanAll(t, "3.5 1e10 2.")
	for i, want := range []float64{3.5, 1e10, 2.0} {
		if toks[i].Type != TokFloat {
			t.Fatalf("token %d type = %v, want TokFloat", i, toks[i].Type)
		}
		if toks[i].Value.(float64) != want {
			t.Errorf("token %d value = %v, want %v", i, toks[i].Value, want)
		}
	}
}

func TestScanHexAndBinaryIntegers(t *testing.T) {
	toks := scanAll(t, "0xFF 0b101")
	if toks[0].Type != TokInt || toks[0].Value.(int64) != 255 {
		t.Errorf("0xFF = %v %v, want TokInt 255", toks[0].Type, toks[0].Value)
	}
	if toks[1].Type != TokInt || toks[1].Value.(int64) != 5 {
		t.Errorf("0b101 = %v %v, want TokInt 5", toks[1].Type, toks[1].Value)
	}
}

func TestScanLineComment(t *testing.T) {
	toks := scanAll(t, "let x # trailing comment\nlet y")
	want := []TokenType{TokLet, TokIdent, TokLet, TokIdent, TokEOF}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d = %v, want %v", i, toks[i].Type, w)
		}
	}
}

func TestScanTracksLineNumbers(t *testing.T) {
	toks := scanAll(t, "let x\n\nlet y")
	if toks[0].Line != 1 {
		t.Errorf("first `let` line = %d, want 1", toks[0].Line)
	}
	// two blank-line advances land `let y` on line 3
	var secondLet Token
	for _, tok := range toks[2:] {
		if tok.Type == TokLet {
			secondLet = tok
			break
		}
	}
	if secondLet.Line != 3 {
		t.Errorf("second `let` line = %d, want 3", secondLet.Line)
	}
}

func TestScanUnexpectedSymbolErrors(t *testing.T) {
	toks := scanAll(t, "let x = @")
	last := toks[len(toks)-1]
	if last.Type != TokError {
		t.Errorf("scanning `@` must yield TokError, got %v", last.Type)
	}
}

func TestScanDotVsDotDotVsFloat(t *testing.T) {
	toks := scanAll(t, ". .. 3.5")
	if toks[0].Type != TokDot {
		t.Errorf("single dot = %v, want TokDot", toks[0].Type)
	}
	if toks[1].Type != TokDotDot {
		t.Errorf("double dot = %v, want TokDotDot", toks[1].Type)
	}
	if toks[2].Type != TokFloat {
		t.Errorf("3.5 after dots = %v, want TokFloat", toks[2].Type)
	}
}

func TestMapInternerDedups(t *testing.T) {
	in := NewMapInterner()
	a := in.Intern("foo")
	b := in.Intern("foo")
	if a != b {
		t.Error("MapInterner must return the same *value.String for repeated content")
	}
}
