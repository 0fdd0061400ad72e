package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/tacitlang/tacit/lang/scanner"
	"github.com/tacitlang/tacit/lang/token"
)

func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return TokenizeFiles(stdio, args...)
}

// TokenizeFiles scans each file in turn and prints one line per token, in
// the form "line:col: kind text".
func TokenizeFiles(stdio mainer.Stdio, files ...string) error {
	var firstErr error
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			printError(stdio, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := tokenizeOne(stdio, path, src); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func tokenizeOne(stdio mainer.Stdio, path string, src []byte) error {
	var sc scanner.Scanner
	sc.Init(src)
	for {
		tok, val, err := sc.Next()
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s:%s: %s\n", path, val.Pos, err)
			return err
		}
		if tok == token.EOF {
			return nil
		}
		fmt.Fprintf(stdio.Stdout, "%s: %s", val.Pos, tok)
		switch tok {
		case token.IDENT, token.SYMBOL, token.AMP, token.AT:
			fmt.Fprintf(stdio.Stdout, " %s", val.Text)
		case token.STRING:
			fmt.Fprintf(stdio.Stdout, " %q", val.Text)
		case token.NUMBER:
			fmt.Fprintf(stdio.Stdout, " %g", val.Number)
		}
		fmt.Fprintln(stdio.Stdout)
	}
}
