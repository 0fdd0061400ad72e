package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tacitlang/tacit/lang/scanner"
	"github.com/tacitlang/tacit/lang/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	var s scanner.Scanner
	s.Init([]byte(src))
	var toks []token.Token
	for {
		tok, _, err := s.Next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok == token.EOF {
			return toks
		}
	}
}

func TestScanKinds(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []token.Token
	}{
		{"empty", "", []token.Token{token.EOF}},
		{"colon def", ": square dup mul ;",
			[]token.Token{token.COLON, token.IDENT, token.IDENT, token.IDENT, token.SEMI, token.EOF}},
		{"list", "( 1 2 3 )",
			[]token.Token{token.LPAREN, token.NUMBER, token.NUMBER, token.NUMBER, token.RPAREN, token.EOF}},
		{"negative number", "-4 square",
			[]token.Token{token.NUMBER, token.IDENT, token.EOF}},
		{"minus word", "3 4 - .",
			[]token.Token{token.NUMBER, token.NUMBER, token.IDENT, token.IDENT, token.EOF}},
		{"string", `"hello\nworld"`, []token.Token{token.STRING, token.EOF}},
		{"symbol", "`default find", []token.Token{token.SYMBOL, token.IDENT, token.EOF}},
		{"local ref and assign", "x -> y &y fetch",
			[]token.Token{token.IDENT, token.ARROW, token.IDENT, token.AMP, token.IDENT, token.EOF}},
		{"increment assign", "1 +> count", []token.Token{token.NUMBER, token.PLUSARROW, token.IDENT, token.EOF}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, scanAll(t, c.src))
		})
	}
}

func TestScanNumberValue(t *testing.T) {
	var s scanner.Scanner
	s.Init([]byte("3.25 -4"))

	tok, val, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, token.NUMBER, tok)
	require.InDelta(t, 3.25, val.Number, 1e-9)

	tok, val, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, token.NUMBER, tok)
	require.InDelta(t, -4.0, val.Number, 1e-9)
}

func TestScanStringEscapes(t *testing.T) {
	var s scanner.Scanner
	s.Init([]byte(`"a\tb\nc\"d"`))
	tok, val, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, token.STRING, tok)
	require.Equal(t, "a\tb\nc\"d", val.Text)
}

func TestScanSymbolName(t *testing.T) {
	var s scanner.Scanner
	s.Init([]byte("`key"))
	tok, val, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, token.SYMBOL, tok)
	require.Equal(t, "key", val.Text)
}

func TestScanUnterminatedString(t *testing.T) {
	var s scanner.Scanner
	s.Init([]byte(`"unterminated`))
	_, _, err := s.Next()
	require.Error(t, err)
}

func TestUnreadPushesTokenBack(t *testing.T) {
	var s scanner.Scanner
	s.Init([]byte("foo bar"))

	tok1, val1, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, token.IDENT, tok1)
	require.Equal(t, "foo", val1.Text)

	s.Unread()

	tok2, val2, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, tok1, tok2)
	require.Equal(t, val1, val2)

	tok3, val3, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, token.IDENT, tok3)
	require.Equal(t, "bar", val3.Text)
}
