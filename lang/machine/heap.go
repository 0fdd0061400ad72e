package machine

import "fmt"

// This file implements the global heap bump allocator of §4.7: gmark/gsweep
// bracket a region the way Dictionary.Mark/Forget bracket definitions, and
// gpush/gpeek/gpop move whole values (span-aware, like the data stack
// shuffle ops in stack.go) between the data stack and the heap. The heap
// region is shared address space with the Dictionary's own entries (§4.8);
// callers that gmark/gsweep across a `define` will unwind dictionary
// entries too, the same hazard as forgetting across live heap pushes.

// GMark pushes the current heap/dictionary mark as a NUMBER, to be passed to
// GSweep later. Delegates to Dictionary.Mark so the snapshot covers both the
// heap pointer and the dictionary chain built on top of it (§4.8: mark is a
// single checkpoint shared by both).
func (vm *VM) GMark() {
	vm.Push(EncodeNumber(float64(vm.Dict.Mark())))
}

// GSweep pops a mark and restores heap and dictionary to it, reclaiming
// everything allocated since — including any `global`/`:` definitions made
// in that span, whose dictionary entries would otherwise keep referencing
// heap cells past the rewound GP.
func (vm *VM) GSweep() error {
	mark := vm.Pop()
	if !mark.IsNumber() {
		return fmt.Errorf("gsweep expects a numeric mark")
	}
	target := int(mark.Number())
	if target < vm.Mem.globalHeapBase || target > vm.GP {
		return vm.fatalf("gsweep: mark %d outside live heap range", target)
	}
	vm.Dict.Forget(uint32(target))
	return nil
}

// GReserveSlot reserves a single heap cell for a `global` binding's fixed
// indirection slot — the heap-resident counterpart of a local's BP+slot
// cell (frame.go) — and returns its address. The dictionary entry for the
// global's name holds a DATA_REF to this slot forever; StoreGlobal later
// writes either the value itself (scalar) or a DATA_REF to a relocated
// header (compound) into it, exactly as StoreLocal does for locals.
func (vm *VM) GReserveSlot() (int, error) {
	if vm.GP+1 > vm.Mem.globalHeapLimit {
		return 0, vm.fatalf("global heap exhausted reserving a global slot")
	}
	slot := vm.GP
	vm.GP++
	return slot, nil
}

// StoreGlobal: (value -- ). Assigns value into the heap cell at addr,
// mirroring StoreLocal (frame.go) but for a global's permanent slot rather
// than a frame-relative one: a scalar overwrites addr directly; a compound
// value is relocated onto the heap above the slot (advancing GP) and addr
// instead receives a DATA_REF to the relocated header.
func (vm *VM) StoreGlobal(addr int) error {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	if span == 1 {
		v := vm.Pop()
		vm.Mem.WriteCell(addr, v)
		return nil
	}
	cells := vm.readSpan(vm.SP-span, span)
	vm.SP -= span
	if vm.GP+span > vm.Mem.globalHeapLimit {
		return vm.fatalf("global heap exhausted")
	}
	dest := vm.GP
	vm.writeSpan(dest, cells)
	header := dest + span - 1
	vm.Mem.WriteCell(addr, AsRef(header))
	vm.GP += span
	return nil
}

// GPush: (value -- ). Pops the top span off the data stack and copies it
// onto the heap, advancing GP.
func (vm *VM) GPush() error {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	if vm.GP+span > vm.Mem.globalHeapLimit {
		return vm.fatalf("global heap exhausted")
	}
	cells := vm.readSpan(vm.SP-span, span)
	vm.SP -= span
	vm.writeSpan(vm.GP, cells)
	vm.GP += span
	return nil
}

// GPeek: (-- value). Pushes a copy of the most recently gpushed value onto
// the data stack without removing it from the heap.
func (vm *VM) GPeek() error {
	if vm.GP <= vm.Mem.globalHeapBase {
		return vm.fatalf("gpeek: heap is empty")
	}
	span := vm.spanEndingAt(vm.GP - 1)
	if vm.GP-span < vm.Mem.globalHeapBase {
		return vm.fatalf("gpeek: corrupt heap span")
	}
	cells := vm.readSpan(vm.GP-span, span)
	vm.writeSpan(vm.SP, cells)
	vm.SP += span
	return nil
}

// GPop: (-- value). Like GPeek, but also removes the value from the heap.
func (vm *VM) GPop() error {
	if vm.GP <= vm.Mem.globalHeapBase {
		return vm.fatalf("gpop: heap is empty")
	}
	span := vm.spanEndingAt(vm.GP - 1)
	if vm.GP-span < vm.Mem.globalHeapBase {
		return vm.fatalf("gpop: corrupt heap span")
	}
	cells := vm.readSpan(vm.GP-span, span)
	vm.GP -= span
	vm.writeSpan(vm.SP, cells)
	vm.SP += span
	return nil
}
