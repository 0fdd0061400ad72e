package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenString(t *testing.T) {
	for tok := Token(0); tok < maxToken; tok++ {
		require.NotEqual(t, "unknown token", tok.String())
	}
	require.Equal(t, "unknown token", Token(-1).String())
	require.Equal(t, "unknown token", maxToken.String())
}

func TestTokenGoString(t *testing.T) {
	require.Equal(t, "':'", COLON.GoString())
	require.Equal(t, "';'", SEMI.GoString())
	require.Equal(t, "identifier", IDENT.GoString())
}

func TestValueCarriesPosition(t *testing.T) {
	v := Value{Pos: Pos{Line: 3, Col: 7}, Text: "dup", Number: 0}
	require.Equal(t, 3, v.Pos.Line)
	require.Equal(t, 7, v.Pos.Col)
	require.Equal(t, "dup", v.Text)
}
