package token

import "fmt"

// Pos is a 1-based line/column source position. The zero value, NoPos,
// means "unknown" and is used for positions synthesized by the compiler
// rather than read from source text.
type Pos struct {
	Line int
	Col  int
}

// NoPos is the zero value of Pos, meaning "unknown position".
var NoPos = Pos{}

// Unknown reports whether p carries no position information.
func (p Pos) Unknown() bool { return p.Line == 0 && p.Col == 0 }

func (p Pos) String() string {
	if p.Unknown() {
		return "-:-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}
