package machine

import "fmt"

// This file implements DATA_REF dereferencing (§4.4/§4.5): Fetch always
// materializes through a ref; Load is the generic "read a value that might
// already have been indirected through a ref" used after VarRef, since a
// local slot holding a compound is itself a DATA_REF to that compound's
// span rather than the span itself (a single reserved cell cannot hold a
// multi-cell value); Store writes a value back through a ref via direct
// cell copy, the fast path mentioned in §4.5 — no shape check against
// whatever previously lived at the target address.

// Fetch: (ref -- value). ref must be a DATA_REF; materializes a copy of the
// value at its target address (header+payload if a LIST, the cell itself
// otherwise).
func (vm *VM) Fetch() error {
	ref := vm.Pop()
	if !ref.IsDataRef() {
		return fmt.Errorf("fetch expects a ref")
	}
	vm.fetchValueAt(ref.RefIndex())
	return nil
}

// Load: (x -- v). Value-by-default dereference. Identity on non-refs. If x
// is a ref, read the cell at its target once; if that cell is itself a
// ref (the case for a local slot holding a compound, which stores a
// DATA_REF to the payload rather than the payload itself), read through it
// a second time. Whatever address that settles on is materialized like
// Fetch (header+payload if a LIST, the cell verbatim otherwise).
func (vm *VM) Load() error {
	x := vm.Pop()
	if !x.IsDataRef() {
		vm.Push(x)
		return nil
	}
	y := vm.Mem.ReadCell(x.RefIndex())
	if y.IsDataRef() {
		vm.fetchValueAt(y.RefIndex())
		return nil
	}
	vm.fetchValueAt(x.RefIndex())
	return nil
}

// Store: (value ref -- ). Writes value's cells directly starting at ref's
// target address.
func (vm *VM) Store() error {
	ref := vm.Pop()
	if !ref.IsDataRef() {
		return fmt.Errorf("store expects a ref")
	}
	vm.requireDepth(1)
	valueSpan := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(valueSpan)
	cells := vm.readSpan(vm.SP-valueSpan, valueSpan)
	vm.SP -= valueSpan
	addr := ref.RefIndex()
	vm.Mem.checkCell(addr)
	vm.Mem.checkCell(addr + valueSpan - 1)
	vm.writeSpan(addr, cells)
	return nil
}
