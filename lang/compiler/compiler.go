// Package compiler implements Tacit's single-pass, tokenizer-driven
// compiler and its immediate-word protocol (§4.10): bare words emit
// builtin opcodes or user-code calls, while a handful of dictionary
// entries are flagged immediate and run at compile time instead, emitting
// bytecode and coordinating placeholder/closer values through the VM's own
// data and return stacks. The universal terminator `;` is one rule: pop
// the top-of-stack closer and dispatch on its kind.
package compiler

import (
	"fmt"

	"github.com/tacitlang/tacit/lang/machine"
	"github.com/tacitlang/tacit/lang/scanner"
	"github.com/tacitlang/tacit/lang/token"
)

// codePaddingBytes reserves the low end of the code segment so that no
// user-defined word ever gets an entry address below OpcodeUserMin. CODE
// cell payloads use that same threshold to distinguish a builtin opcode
// number from a user code address (§4.2); without this padding, the very
// first colon definition compiled into an empty code segment could land at
// an address indistinguishable from a builtin opcode when later passed
// through Eval.
const codePaddingBytes = machine.OpcodeUserMin

// Compiler holds all state for one VM's compile-time world: the current
// function's local-variable table and the bookkeeping for whatever colon
// definition is presently open. It is a Compiler record in the sense of
// §9's design note: an explicit struct threaded through compile-time
// helpers rather than static globals.
type Compiler struct {
	vm *machine.VM
	sc scanner.Scanner

	locals []string // name per slot, current function body (nil at top level)
	curDef *definition

	// caseDefaultSeen tracks, per currently-open "case" (outermost first),
	// whether its DEFAULT clause has already been seen.
	caseDefaultSeen []bool
}

// definition tracks the colon-definition currently being compiled. Unlike
// if/when/case, which nest their fix-up bookkeeping through closer pairs
// pushed on the data stack, Tacit does not support nested colon
// definitions, so a single pending record suffices.
type definition struct {
	name               string
	branchPlaceholder  int // forward Branch skipping the body at top level
	reservePlaceholder int // Reserve's localCount operand, patched at close
}

// New creates a Compiler bound to vm. It pads the code segment so word
// addresses never collide with the builtin opcode range, registers every
// builtin opcode as a plain dictionary CODE entry, and registers the
// immediate words as CODE entries with the meta (immediate) bit set.
func New(vm *machine.VM) (*Compiler, error) {
	if err := machine.RegisterBuiltins(vm); err != nil {
		return nil, err
	}
	for vm.Mem.CodeLen() < codePaddingBytes {
		vm.Mem.EmitByte(byte(machine.Nop))
	}
	c := &Compiler{vm: vm}
	if err := c.registerImmediates(); err != nil {
		return nil, err
	}
	return c, nil
}

// registerImmediates mirrors every immediate word into the dictionary with
// the meta bit set, matching the startup sequence described in §4.8. The
// payload is unused (dispatch happens through the Go-side immediates
// table in immediates.go); its presence only lets `lookup` and ordinary
// word listings see these names as real, immediate dictionary entries.
func (c *Compiler) registerImmediates() error {
	for name := range immediateHandlers {
		if err := c.vm.Dict.Define(name, machine.EncodeTagged(machine.TagCode, 0, true)); err != nil {
			return err
		}
	}
	return nil
}

// Compile tokenizes and compiles one top-level submission from src,
// emitting bytecode (and running immediate words) until EOF, then appends
// an Abort so Run() halts cleanly at the end of the newly compiled region.
// On any compile error the VM dictionary (and with it the heap pointer) is
// rolled back to the mark taken at entry, and the local table and any open
// definition are cleared; the code segment is left as-is
// (unreachable past the point of failure, since nothing branches into it).
func (c *Compiler) Compile(src []byte) error {
	mark := c.vm.Dict.Mark()
	c.sc.Init(src)
	if err := c.compileTokens(); err != nil {
		c.vm.Dict.Forget(mark)
		c.locals = nil
		c.curDef = nil
		return err
	}
	c.vm.Mem.EmitByte(byte(machine.Abort))
	return nil
}

func (c *Compiler) compileTokens() error {
	for {
		tok, val, err := c.sc.Next()
		if err != nil {
			return err
		}
		if tok == token.EOF {
			if c.curDef != nil {
				return fmt.Errorf("%s: unclosed definition %q", val.Pos, c.curDef.name)
			}
			return nil
		}
		if err := c.compileOne(tok, val); err != nil {
			return err
		}
	}
}

func (c *Compiler) compileOne(tok token.Token, val token.Value) error {
	switch tok {
	case token.NUMBER:
		c.vm.Mem.EmitByte(byte(machine.LiteralNumber))
		c.vm.Mem.EmitUint32(uint32(machine.EncodeNumber(val.Number)))
		return nil
	case token.STRING:
		off := c.vm.Digest.Intern(val.Text)
		c.vm.Mem.EmitByte(byte(machine.LiteralString))
		c.vm.Mem.EmitUint16(off)
		return nil
	case token.SYMBOL:
		off := c.vm.Digest.Intern(val.Text)
		c.vm.Mem.EmitByte(byte(machine.LiteralString))
		c.vm.Mem.EmitUint16(off)
		return nil
	case token.LPAREN:
		c.vm.Mem.EmitByte(byte(machine.OpenList))
		return nil
	case token.RPAREN:
		c.vm.Mem.EmitByte(byte(machine.CloseList))
		return nil
	case token.COLON:
		return c.openDefinition()
	case token.SEMI:
		return c.closeGeneric()
	case token.ARROW:
		return c.compileArrow(false)
	case token.PLUSARROW:
		return c.compileArrow(true)
	case token.AMP:
		return c.compileLocalRef(val.Text)
	case token.AT:
		return fmt.Errorf("%s: '@' sigil is reserved", val.Pos)
	case token.IDENT:
		return c.compileIdent(val)
	default:
		return fmt.Errorf("%s: unexpected token %s", val.Pos, tok.GoString())
	}
}

// compileIdent resolves a bare word: first against the current local
// table (a read compiles to VarRef+Load), then the dictionary. A
// dictionary CODE entry with the immediate (meta) bit set runs its
// compile-time handler now instead of being compiled as a call.
func (c *Compiler) compileIdent(val token.Value) error {
	name := val.Text
	if slot, ok := c.lookupLocal(name); ok {
		c.emitVarRef(slot)
		c.vm.Mem.EmitByte(byte(machine.Load))
		return nil
	}

	entry, ok := c.vm.Dict.Lookup(name)
	if !ok {
		return fmt.Errorf("%s: unknown word %q", val.Pos, name)
	}
	if entry.Tag() == machine.TagDataRef {
		// a global: read its current value, value-by-default.
		c.emitLiteralRef(entry.RefIndex())
		c.vm.Mem.EmitByte(byte(machine.Load))
		return nil
	}
	if entry.Tag() != machine.TagCode {
		return fmt.Errorf("%s: %q does not name executable code", val.Pos, name)
	}
	if entry.Meta() {
		handler, ok := immediateHandlers[name]
		if !ok {
			return fmt.Errorf("%s: %q is immediate but has no compiler handler", val.Pos, name)
		}
		return handler(c)
	}

	payload := entry.Payload()
	if payload < machine.OpcodeUserMin {
		c.vm.Mem.EmitByte(byte(payload))
		return nil
	}
	c.emitUserCall(int(payload))
	return nil
}

// emitUserCall emits the compact two-byte user-code call form: the high
// bit of the first byte is always set (unambiguous against the <128
// builtin-opcode byte range), the remaining 15 bits carry the address.
func (c *Compiler) emitUserCall(addr int) {
	c.vm.Mem.EmitByte(0x80 | byte(addr>>8))
	c.vm.Mem.EmitByte(byte(addr & 0xFF))
}

func (c *Compiler) emitVarRef(slot int) {
	c.vm.Mem.EmitByte(byte(machine.VarRef))
	c.vm.Mem.EmitUint16(uint16(slot))
}

// emitLiteralRef pushes a constant DATA_REF to an absolute cell address —
// used for global variables, whose address is fixed at declaration time
// rather than relative to a frame's BP the way a local's VarRef is.
func (c *Compiler) emitLiteralRef(addr int) {
	c.vm.Mem.EmitByte(byte(machine.LiteralRef))
	c.vm.Mem.EmitUint16(uint16(addr))
}

// patchBranchTo overwrites the 16-bit offset operand at operandAddr (a
// Branch or IfFalseBranch already emitted) so that it jumps to target. The
// offset is relative to the instruction pointer just past the operand.
func (c *Compiler) patchBranchTo(operandAddr, target int) {
	c.vm.Mem.PatchInt16(operandAddr, int16(target-(operandAddr+2)))
}

// patchBranchHere patches the branch operand at operandAddr to jump to the
// current end of the code segment.
func (c *Compiler) patchBranchHere(operandAddr int) {
	c.patchBranchTo(operandAddr, c.vm.Mem.CodeLen())
}

func (c *Compiler) lookupLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i] == name {
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) addLocal(name string) int {
	slot := len(c.locals)
	c.locals = append(c.locals, name)
	return slot
}

// compileLocalRef implements `&name` (§4.6): VarRef(slot) + Fetch.
func (c *Compiler) compileLocalRef(name string) error {
	slot, ok := c.lookupLocal(name)
	if !ok {
		return fmt.Errorf("&%s: no such local", name)
	}
	c.emitVarRef(slot)
	c.vm.Mem.EmitByte(byte(machine.Fetch))
	return nil
}

// compileArrow implements both `-> name` (plain assignment, auto-declaring
// the local on first use) and `+> name` (increment in place; the local
// must already exist).
func (c *Compiler) compileArrow(increment bool) error {
	tok, val, err := c.sc.Next()
	if err != nil {
		return err
	}
	if tok != token.IDENT {
		return fmt.Errorf("%s: expected local name after arrow, got %s", val.Pos, tok.GoString())
	}
	name := val.Text
	if slot, ok := c.lookupLocal(name); ok {
		if increment {
			c.emitVarRef(slot)
			c.vm.Mem.EmitByte(byte(machine.Load))
			c.vm.Mem.EmitByte(byte(machine.Add))
		}
		c.vm.Mem.EmitByte(byte(machine.StoreLocal))
		c.vm.Mem.EmitUint16(uint16(slot))
		return nil
	}
	if increment {
		return fmt.Errorf("%s: +> target %q is not a declared local", val.Pos, name)
	}
	// not a local: an existing global is reassigned through StoreGlobal (the
	// same slot-indirection scheme immGlobal uses for its initial decl, so a
	// reassignment to a differently-shaped compound value relocates cleanly
	// instead of overwriting whatever follows the slot); anything else
	// auto-declares a new local, per §4.6/§4.7.
	if entry, ok := c.vm.Dict.Lookup(name); ok && entry.Tag() == machine.TagDataRef {
		c.vm.Mem.EmitByte(byte(machine.StoreGlobal))
		c.vm.Mem.EmitUint16(uint16(entry.RefIndex()))
		return nil
	}
	slot := c.addLocal(name)
	c.vm.Mem.EmitByte(byte(machine.StoreLocal))
	c.vm.Mem.EmitUint16(uint16(slot))
	return nil
}

// next exposes the scanner to immediate handlers that need to read a
// following token synchronously (e.g. `var name`, the name after `:`).
func (c *Compiler) next() (token.Token, token.Value, error) { return c.sc.Next() }

// openDefinition implements `:` (§4.10): emits a forward Branch over the
// body (so straight-line execution of the enclosing submission skips it),
// reserves space for a Reserve instruction whose localCount is only known
// once the body finishes compiling, and defines the word immediately
// (rather than at the closing `;` as the prose literally has it) so the
// body can call itself recursively.
func (c *Compiler) openDefinition() error {
	if c.curDef != nil {
		return fmt.Errorf("colon definitions cannot nest")
	}
	tok, val, err := c.next()
	if err != nil {
		return err
	}
	if tok != token.IDENT {
		return fmt.Errorf("%s: expected a name after ':', got %s", val.Pos, tok.GoString())
	}
	name := val.Text

	c.vm.Mem.EmitByte(byte(machine.Branch))
	branchPh := c.vm.Mem.EmitInt16(0)

	entryAddr := c.vm.Mem.CodeLen()
	c.vm.Mem.EmitByte(byte(machine.Reserve))
	reservePh := c.vm.Mem.EmitUint16(0)

	if err := c.vm.Dict.Define(name, machine.EncodeTagged(machine.TagCode, uint16(entryAddr), false)); err != nil {
		return err
	}

	c.locals = nil
	c.curDef = &definition{name: name, branchPlaceholder: branchPh, reservePlaceholder: reservePh}
	c.vm.Push(machine.EncodeTagged(machine.TagSentinel, uint16(machine.SentinelEndDefinition), false))
	return nil
}

// closeDefinition implements the EndDefinition epilogue (§4.10 step 3).
func (c *Compiler) closeDefinition() error {
	c.vm.Mem.EmitByte(byte(machine.Exit))
	c.patchBranchHere(c.curDef.branchPlaceholder)
	c.vm.Mem.PatchUint16(c.curDef.reservePlaceholder, uint16(len(c.locals)))
	c.locals = nil
	c.curDef = nil
	return nil
}

// closeGeneric implements the universal `;` terminator (§4.10): pop the
// closer on top of the data stack and dispatch on its sentinel kind.
func (c *Compiler) closeGeneric() error {
	if c.vm.Depth() == 0 {
		return fmt.Errorf("';': nothing open to close")
	}
	top := c.vm.Pop()
	if top.IsNumber() || top.Tag() != machine.TagSentinel {
		return fmt.Errorf("';': top of stack is not a closer")
	}
	switch machine.Sentinel(top.Payload()) {
	case machine.SentinelEndDefinition:
		return c.closeDefinition()
	case machine.SentinelEndIf:
		return c.closeIf()
	case machine.SentinelEndWhen:
		return c.closeWhen()
	case machine.SentinelEndOf:
		return c.closeOf()
	case machine.SentinelEndCase:
		return c.closeCase()
	case machine.SentinelDefault:
		return c.closeDefault()
	default:
		return fmt.Errorf("';': unexpected closer %s", machine.Sentinel(top.Payload()))
	}
}
