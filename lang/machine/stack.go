package machine

// This file implements the element-span-aware data stack operations of
// §4.3: every shuffle moves whole spans atomically, so a compound (LIST)
// value is never split across the operation.

// Dup duplicates the top span.
func (vm *VM) Dup() {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	v := vm.readSpan(vm.SP-span, span)
	vm.writeSpan(vm.SP, v)
	vm.SP += span
}

// Drop removes the top span.
func (vm *VM) Drop() {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	vm.SP -= span
}

// twoSpans returns (aStart, spanA, spanB) for the top two logical values,
// where B is TOS and A is just below it.
func (vm *VM) twoSpans() (aStart, spanA, spanB int) {
	vm.requireDepth(1)
	spanB = vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(spanB + 1)
	spanA = vm.spanEndingAt(vm.SP - 1 - spanB)
	vm.requireDepth(spanA + spanB)
	aStart = vm.SP - spanA - spanB
	return
}

// Swap: (A B -- B A). A moves above B, B moves below A.
func (vm *VM) Swap() {
	aStart, spanA, spanB := vm.twoSpans()
	a := vm.readSpan(aStart, spanA)
	b := vm.readSpan(aStart+spanA, spanB)
	vm.writeSpan(aStart, b)
	vm.writeSpan(aStart+spanB, a)
}

// Over: (A B -- A B A).
func (vm *VM) Over() {
	aStart, spanA, _ := vm.twoSpans()
	a := vm.readSpan(aStart, spanA)
	vm.writeSpan(vm.SP, a)
	vm.SP += spanA
}

// Nip: (A B -- B).
func (vm *VM) Nip() {
	aStart, spanA, spanB := vm.twoSpans()
	b := vm.readSpan(aStart+spanA, spanB)
	vm.writeSpan(aStart, b)
	vm.SP = aStart + spanB
}

// Tuck: (A B -- B A B).
func (vm *VM) Tuck() {
	aStart, spanA, spanB := vm.twoSpans()
	a := vm.readSpan(aStart, spanA)
	b := vm.readSpan(aStart+spanA, spanB)
	vm.writeSpan(aStart, b)
	vm.writeSpan(aStart+spanB, a)
	vm.writeSpan(aStart+spanB+spanA, b)
	vm.SP = aStart + spanB + spanA + spanB
}

// threeSpans returns (aStart, spanA, spanB, spanC) for the top three
// logical values, C being TOS.
func (vm *VM) threeSpans() (aStart, spanA, spanB, spanC int) {
	vm.requireDepth(1)
	spanC = vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(spanC + 1)
	spanB = vm.spanEndingAt(vm.SP - 1 - spanC)
	vm.requireDepth(spanC + spanB + 1)
	spanA = vm.spanEndingAt(vm.SP - 1 - spanC - spanB)
	vm.requireDepth(spanA + spanB + spanC)
	aStart = vm.SP - spanA - spanB - spanC
	return
}

// Rot: (A B C -- B C A).
func (vm *VM) Rot() {
	aStart, spanA, spanB, spanC := vm.threeSpans()
	a := vm.readSpan(aStart, spanA)
	b := vm.readSpan(aStart+spanA, spanB)
	c := vm.readSpan(aStart+spanA+spanB, spanC)
	vm.writeSpan(aStart, b)
	vm.writeSpan(aStart+spanB, c)
	vm.writeSpan(aStart+spanB+spanC, a)
}

// NRot (-rot): (A B C -- C A B).
func (vm *VM) NRot() {
	aStart, spanA, spanB, spanC := vm.threeSpans()
	a := vm.readSpan(aStart, spanA)
	b := vm.readSpan(aStart+spanA, spanB)
	c := vm.readSpan(aStart+spanA+spanB, spanC)
	vm.writeSpan(aStart, c)
	vm.writeSpan(aStart+spanC, a)
	vm.writeSpan(aStart+spanC+spanA, b)
}

// Pick duplicates the value n spans below the current top, where n is
// popped from the stack as a NUMBER (0 duplicates the current top, same as
// Dup).
func (vm *VM) Pick() error {
	n := vm.Pop()
	if !n.IsNumber() {
		return vm.fatalf("pick expects a number")
	}
	idx := vm.SP - 1
	for i := 0; i < int(n.Number()); i++ {
		vm.requireDepth(1)
		span := vm.spanEndingAt(idx)
		idx -= span
		if idx < vm.Mem.dataStackBase {
			return vm.fatalf("pick: index out of range")
		}
	}
	span := vm.spanEndingAt(idx)
	v := vm.readSpan(idx-span+1, span)
	vm.writeSpan(vm.SP, v)
	vm.SP += span
	return nil
}
