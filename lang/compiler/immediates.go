package compiler

import (
	"fmt"

	"github.com/tacitlang/tacit/lang/machine"
	"github.com/tacitlang/tacit/lang/token"
)

// immediateHandlers maps every immediate word's name to its compile-time
// handler. New registers this map's keys into the dictionary
// (registerImmediates) before returning, so the CODE(0, meta) entries
// created there and the handlers here always cover the same name set.
var immediateHandlers = map[string]func(*Compiler) error{
	"var":     (*Compiler).immVar,
	"global":  (*Compiler).immGlobal,
	"if":      (*Compiler).immIf,
	"else":    (*Compiler).immElse,
	"when":    (*Compiler).immWhen,
	"do":      (*Compiler).immDo,
	"case":    (*Compiler).immCase,
	"of":      (*Compiler).immOf,
	"DEFAULT": (*Compiler).immDefault,
	"finally": (*Compiler).immFinally,
}

// immVar implements `value var name` (§8's buffer example: `3 buffer var
// b` leaves a LIST on the stack that `var` must consume): declares a new
// local slot and stores the value already on top of the stack into it,
// the same StoreLocal-based assignment `->` uses, except `var` always
// allocates a fresh slot rather than resolving an existing one first.
func (c *Compiler) immVar() error {
	tok, val, err := c.next()
	if err != nil {
		return err
	}
	if tok != token.IDENT {
		return fmt.Errorf("%s: expected a local name after 'var', got %s", val.Pos, tok.GoString())
	}
	slot := c.addLocal(val.Text)
	c.vm.Mem.EmitByte(byte(machine.StoreLocal))
	c.vm.Mem.EmitUint16(uint16(slot))
	return nil
}

// immGlobal implements `value global name` (§4.7): the value already on
// top of the data stack at RUNTIME (the already-compiled preceding
// expression) is stored into a fixed heap slot reserved for this global now,
// at compile time — because each top-level submission is fully compiled
// and then run before the next one is compiled, GP's value at compile time
// is exactly where that slot will live when this code executes. The
// dictionary entry records the slot's address as a DATA_REF, the same
// fixed-cell-plus-indirection scheme StoreLocal uses for a compound local
// (frame.go): a scalar global lives in the slot directly; a compound one is
// relocated above it on the heap and the slot holds a DATA_REF to the
// relocated header. This is what lets a bare read (LiteralRef+Load) work
// uniformly regardless of the global's shape. Declaring a global inside
// conditional code that might not always run is unsupported — GP would
// then not match at the next global decl.
func (c *Compiler) immGlobal() error {
	tok, val, err := c.next()
	if err != nil {
		return err
	}
	if tok != token.IDENT {
		return fmt.Errorf("%s: expected a name after 'global', got %s", val.Pos, tok.GoString())
	}
	slot, err := c.vm.GReserveSlot()
	if err != nil {
		return err
	}
	c.vm.Mem.EmitByte(byte(machine.StoreGlobal))
	c.vm.Mem.EmitUint16(uint16(slot))
	return c.vm.Dict.Define(val.Text, machine.AsRef(slot))
}

// immIf implements the `if` opener (§4.10).
func (c *Compiler) immIf() error {
	c.vm.Mem.EmitByte(byte(machine.IfFalseBranch))
	ph := c.vm.Mem.EmitInt16(0)
	c.vm.Push(machine.EncodeNumber(float64(ph)))
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelEndIf), false))
	return nil
}

// immElse implements `else`, valid only while the closer on top is EndIf.
func (c *Compiler) immElse() error {
	if c.vm.Depth() < 2 || !c.vm.Top().IsSentinel(machine.SentinelEndIf) {
		return fmt.Errorf("'else' without a matching 'if'")
	}
	c.vm.Pop() // EndIf
	ph := int(c.vm.Pop().Number())

	c.vm.Mem.EmitByte(byte(machine.Branch))
	newPh := c.vm.Mem.EmitInt16(0)
	c.patchBranchHere(ph)

	c.vm.Push(machine.EncodeNumber(float64(newPh)))
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelEndIf), false))
	return nil
}

// closeIf implements the EndIf epilogue. Standalone, it simply patches the
// IfFalseBranch to here. When this `if` is the guard of a `when`/`do`
// clause — the marker just beneath its own (placeholder, EndIf) pair is
// EndWhen — it additionally performs the forward-exit-branch bookkeeping
// that §4.10 describes for a clause's own closing `;` (EndDo): `do` in
// this implementation only emits `dup` to preserve the discriminant for
// the guard comparison the user writes, and contributes no closer of its
// own, so EndIf's close is the point where a when/do clause's exit
// bookkeeping actually happens. On the matching path a `nip` removes the
// discriminant from beneath the clause's result before the exit branch; a
// clause whose guard fails leaves the discriminant in place for the next
// one. This reconciles the construct's described
// return-stack-accumulation protocol with the fact that, read literally,
// `do`'s own IfFalseBranch would have to test a value that the guard
// expression following it hasn't computed yet.
func (c *Compiler) closeIf() error {
	ph := int(c.vm.Pop().Number())
	if c.vm.Depth() > 0 && c.vm.Top().IsSentinel(machine.SentinelEndWhen) {
		c.vm.Mem.EmitByte(byte(machine.Nip))
		c.vm.Mem.EmitByte(byte(machine.Branch))
		exitPh := c.vm.Mem.EmitInt16(0)
		c.vm.RPush(machine.EncodeNumber(float64(exitPh)))
		c.patchBranchHere(ph)
		return nil
	}
	c.patchBranchHere(ph)
	return nil
}

// immWhen implements the `when` opener (§4.10).
func (c *Compiler) immWhen() error {
	savedRSP := c.vm.RSP
	c.vm.Push(machine.EncodeNumber(float64(savedRSP)))
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelEndWhen), false))
	return nil
}

// immDo implements `do`: duplicates the discriminant so the guard
// expression that follows (typically a comparison) can consume a copy
// while leaving the original in place for later clauses. See closeIf for
// where this clause's branch bookkeeping actually happens.
func (c *Compiler) immDo() error {
	c.vm.Mem.EmitByte(byte(machine.Dup))
	return nil
}

// closeWhen implements the EndWhen epilogue: patches every recorded
// forward-exit-branch operand (accumulated on the return stack by each
// clause's close, down to the snapshot `when` took) to the common exit
// point.
func (c *Compiler) closeWhen() error {
	savedRSP := int(c.vm.Pop().Number())
	target := c.vm.Mem.CodeLen()
	for c.vm.RSP > savedRSP {
		addr := int(c.vm.RPop().Number())
		c.patchBranchTo(addr, target)
	}
	if c.vm.RSP != savedRSP {
		return fmt.Errorf("when: return stack did not unwind to the snapshot taken by 'when'")
	}
	return nil
}

// immCase implements the `case` opener (§4.10).
func (c *Compiler) immCase() error {
	savedRSP := c.vm.RSP
	c.vm.Push(machine.EncodeNumber(float64(savedRSP)))
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelEndCase), false))
	c.caseDefaultSeen = append(c.caseDefaultSeen, false)
	return nil
}

// immOf implements `of`: compares the discriminant against the clause key
// literal that precedes it, leaving the discriminant in place for later
// clauses. `over` (not the bare `dup` the prose names) is what actually
// achieves this: by the time `of` runs, the key literal is already the
// top of the runtime stack (it was compiled immediately before `of`), so
// duplicating it would compare the key against itself; `over` instead
// copies the discriminant sitting beneath it up to the top for the
// comparison, so the discriminant survives each non-matching clause for the
// next one to test.
func (c *Compiler) immOf() error {
	if c.vm.Depth() == 0 || !c.vm.Top().IsSentinel(machine.SentinelEndCase) {
		return fmt.Errorf("'of' outside 'case'")
	}
	c.vm.Mem.EmitByte(byte(machine.Over))
	c.vm.Mem.EmitByte(byte(machine.Eq))
	c.vm.Mem.EmitByte(byte(machine.IfFalseBranch))
	ph := c.vm.Mem.EmitInt16(0)
	c.vm.Push(machine.EncodeNumber(float64(ph)))
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelEndOf), false))
	return nil
}

// closeOf implements the EndOf epilogue: emits the clause's forward exit
// branch, records its operand on the return stack, and patches the
// clause's IfFalseBranch to just past it (the start of the next clause).
func (c *Compiler) closeOf() error {
	ph := int(c.vm.Pop().Number())
	c.vm.Mem.EmitByte(byte(machine.Branch))
	exitPh := c.vm.Mem.EmitInt16(0)
	c.vm.RPush(machine.EncodeNumber(float64(exitPh)))
	c.patchBranchHere(ph)
	return nil
}

// immDefault implements `DEFAULT`: marks the default clause of the
// innermost open `case`. Written uppercase, matching its only mention in
// the specification's worked examples, which keeps it lexically distinct
// from the lowercase `default` symbol Find falls back to on a missing key.
func (c *Compiler) immDefault() error {
	if len(c.caseDefaultSeen) == 0 {
		return fmt.Errorf("'DEFAULT' outside 'case'")
	}
	if c.caseDefaultSeen[len(c.caseDefaultSeen)-1] {
		return fmt.Errorf("'case' already has a 'DEFAULT' clause")
	}
	c.caseDefaultSeen[len(c.caseDefaultSeen)-1] = true
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelDefault), false))
	return nil
}

// closeDefault implements the default-clause epilogue: same forward-exit
// bookkeeping as closeOf, minus the IfFalseBranch patch (DEFAULT has no
// guard to patch).
func (c *Compiler) closeDefault() error {
	c.vm.Mem.EmitByte(byte(machine.Branch))
	exitPh := c.vm.Mem.EmitInt16(0)
	c.vm.RPush(machine.EncodeNumber(float64(exitPh)))
	return nil
}

// closeCase implements the EndCase epilogue. The fall-through path (no
// clause matched and there is no DEFAULT) leaves only the discriminant, which
// a `drop` discards before branching past the `nip` that follows. Every
// clause's exit branch (and DEFAULT's, if present) lands on that `nip`,
// which removes the discriminant from beneath the clause's result.
func (c *Compiler) closeCase() error {
	savedRSP := int(c.vm.Pop().Number())
	c.vm.Mem.EmitByte(byte(machine.Drop))
	c.vm.Mem.EmitByte(byte(machine.Branch))
	skipPh := c.vm.Mem.EmitInt16(0)
	target := c.vm.Mem.CodeLen()
	for c.vm.RSP > savedRSP {
		addr := int(c.vm.RPop().Number())
		c.patchBranchTo(addr, target)
	}
	c.vm.Mem.EmitByte(byte(machine.Nip))
	c.patchBranchHere(skipPh)
	if len(c.caseDefaultSeen) > 0 {
		c.caseDefaultSeen = c.caseDefaultSeen[:len(c.caseDefaultSeen)-1]
	}
	return nil
}

// immFinally implements `finally` (§4.10): everything before it in the
// enclosing definition is the body; everything after, up to the
// definition's closing `;`, is the cleanup region. Both share the same
// frame and local table — no nested call is compiled here — because the
// interpreter's unwind-on-error loop (machine.VM.Step) inspects only the
// next instruction to execute, not the frame boundary: an error raised
// anywhere in the body (or deeper, in a callee) unwinds frame-by-frame
// until the next instruction due to run is SetInFinally, wherever it sits.
// Keeping body and cleanup in one frame reaches the identical externally
// observable behavior the spec's wrapper-calls-body description produces,
// without requiring a single-pass compiler to relocate already-emitted
// bytecode.
func (c *Compiler) immFinally() error {
	c.vm.Mem.EmitByte(byte(machine.SetInFinally))
	return nil
}
