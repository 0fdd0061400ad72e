package machine

import "fmt"

// This file implements the call-frame protocol of §4.6. A frame's saved
// return IP and saved BP live on the return stack as plain NUMBER cells;
// locals live above them as a block of Reserve'd cells addressed relative
// to BP via VarRef/DATA_REF.

// EnterFrame runs the prologue for a user-code call: it saves returnIP and
// the caller's BP on the return stack, then rebases BP to the new frame.
func (vm *VM) EnterFrame(returnIP int) {
	vm.RPush(EncodeNumber(float64(returnIP)))
	vm.RPush(EncodeNumber(float64(vm.BP)))
	vm.BP = vm.RSP
}

// ReserveLocals advances RSP by n cells, zero-initializing them as NIL, to
// make room for a frame's local variables.
func (vm *VM) ReserveLocals(n int) error {
	if n < 0 {
		return fmt.Errorf("reserve: negative count %d", n)
	}
	if vm.RSP+n > vm.Mem.returnStackLimit {
		return vm.fatalf("return stack overflow reserving %d locals", n)
	}
	for i := 0; i < n; i++ {
		vm.RPush(NilCell)
	}
	return nil
}

// ExitFrame runs the epilogue: it discards the current frame's locals,
// restores the caller's BP, and returns the IP to resume execution at.
func (vm *VM) ExitFrame() int {
	vm.RSP = vm.BP
	bp := vm.RPop()
	returnIP := vm.RPop()
	vm.BP = int(bp.Number())
	return int(returnIP.Number())
}

// LocalRef returns a DATA_REF to the slot-th cell of the current frame's
// locals (BP + slot).
func (vm *VM) LocalRef(slot int) Cell {
	return AsRef(vm.BP + slot)
}

// StoreLocal assigns the top-of-stack value into local slot. Simple values
// overwrite the slot cell in place; compound values are relocated above
// RSP (extending the current frame) and the slot instead receives a
// DATA_REF to the relocated header, since a single reserved cell cannot
// hold a multi-cell span (§4.6).
func (vm *VM) StoreLocal(slot int) error {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	if span == 1 {
		v := vm.Pop()
		vm.Mem.WriteCell(vm.BP+slot, v)
		return nil
	}
	cells := vm.readSpan(vm.SP-span, span)
	vm.SP -= span
	dest := vm.RSP
	if dest <= vm.BP+slot {
		// the slot has no reserved cell below RSP (a top-level local, outside
		// any Reserve'd frame): relocate above the slot, not over it.
		dest = vm.BP + slot + 1
	}
	vm.Mem.checkCell(dest + span - 1)
	vm.writeSpan(dest, cells)
	header := dest + span - 1
	vm.Mem.WriteCell(vm.BP+slot, AsRef(header))
	vm.RSP = dest + span
	return nil
}
