package lexer

import "testing"

func tokenTypes(src string) []TokenType {
	l := New(src)
	toks, _ := l.Tokenize()
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestOperatorsAndDelimiters(t *testing.T) {
	src := `val x = 1 + 2 * (3 - 4) / 5 % 6`
	got := tokenTypes(src)
	want := []TokenType{TokenVal, TokenIdentifier, TokenAssign, TokenInt, TokenPlus, TokenInt, TokenStar,
		TokenLParen, TokenInt, TokenMinus, TokenInt, TokenRParen, TokenSlash, TokenInt, TokenPercent, TokenInt, TokenEOF}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestKeywordsNotConfusedWithIdentifiers(t *testing.T) {
	l := New("fun valid(x: Int) = x")
	fst := l.NextToken()
	if fst.Type != TokenFun {
		t.Fatalf("expected TokenFun, got %v", fst.Type)
	}
	snd := l.NextToken()
	if snd.Type != TokenIdentifier || snd.Literal != "valid" {
		t.Fatalf("expected identifier 'valid' (not keyword prefix match), got %v %q", snd.Type, snd.Literal)
	}
}

func TestStringInterpolationRaw(t *testing.T) {
	l := New(`"hello ${name.upper()} and ${1+1}"`)
	tok := l.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("expected TokenString, got %v", tok.Type)
	}
	want := `hello ${name.upper()} and ${1+1}`
	if tok.Literal != want {
		t.Fatalf("literal = %q, want %q", tok.Literal, want)
	}
}

func TestStringWithNestedQuoteInInterpolation(t *testing.T) {
	l := New(`"val: ${m["k"]}"`)
	tok := l.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("expected TokenString, got %v", tok.Type)
	}
	want := `val: ${m["k"]}`
	if tok.Literal != want {
		t.Fatalf("literal = %q, want %q", tok.Literal, want)
	}
}

func TestNumberSuffixesAndRanks(t *testing.T) {
	cases := []struct {
		src  string
		typ  TokenType
		want string
	}{
		{"42", TokenInt, "42"},
		{"42L", TokenLong, "42"},
		{"3.14", TokenDouble, "3.14"},
		{"3.14f", TokenFloat, "3.14"},
		{"3.14d", TokenDouble, "3.14"},
		{"1_000_000", TokenInt, "1000000"},
		{"0xFF", TokenInt, "0xFF"},
	}
	for _, c := range cases {
		l := New(c.src)
		tok := l.NextToken()
		if tok.Type != c.typ {
			t.Fatalf("%q: type = %v, want %v", c.src, tok.Type, c.typ)
		}
		if tok.Literal != c.want {
			t.Fatalf("%q: literal = %q, want %q", c.src, tok.Literal, c.want)
		}
	}
}

func TestRangeAndSafeOperators(t *testing.T) {
	got := tokenTypes(`a?.b?[0] ?: c..<d |> e::f`)
	want := []TokenType{
		TokenIdentifier, TokenSafeDot, TokenIdentifier, TokenSafeIndex, TokenInt, TokenRBracket,
		TokenElvis, TokenIdentifier, TokenDotDotLt, TokenIdentifier, TokenPipeGt, TokenIdentifier,
		TokenDoubleColon, TokenIdentifier, TokenEOF,
	}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestComments(t *testing.T) {
	src := "val x = 1 // trailing\n/* block\n comment */ val y = 2"
	got := tokenTypes(src)
	want := []TokenType{TokenVal, TokenIdentifier, TokenAssign, TokenInt, TokenVal, TokenIdentifier, TokenAssign, TokenInt, TokenEOF}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d: %v", len(got), len(want), got)
	}
}
