package machine

import "fmt"

// This file implements the ring buffer primitive of §4.12: `N buffer`
// allocates a fixed-capacity LIST whose base-first payload holds two meta
// cells (readPtr, writePtr) followed by N data slots. The pointers are
// monotonically increasing counters, not wrapped indices — the physical
// slot for a logical position is ptr mod N, and (writePtr - readPtr) is
// always the element count. Because the structure is fixed-size and
// reused across many write/read calls, every op here mutates it in place
// through a DATA_REF rather than popping/rebuilding it by value the way
// the general list ops do.

// Buffer: (n -- buf). Allocates and pushes a zero-initialized buffer with
// capacity n.
func (vm *VM) Buffer() error {
	nCell := vm.Pop()
	if !nCell.IsNumber() {
		return fmt.Errorf("buffer expects a numeric capacity")
	}
	n := int(nCell.Number())
	if n < 0 {
		return fmt.Errorf("buffer: negative capacity %d", n)
	}
	mark := vm.SP
	vm.Push(EncodeNumber(0)) // readPtr
	vm.Push(EncodeNumber(0)) // writePtr
	for i := 0; i < n; i++ {
		vm.Push(EncodeNumber(0))
	}
	s := vm.SP - mark
	vm.Push(EncodeTagged(TagList, uint16(s), false))
	return nil
}

func (vm *VM) bufFields(ref Cell) (base, n, readPtr, writePtr int, err error) {
	if !ref.IsDataRef() {
		err = fmt.Errorf("buffer op expects a ref")
		return
	}
	h := ref.RefIndex()
	c := vm.Mem.ReadCell(h)
	if !c.IsList() {
		err = fmt.Errorf("buffer op: target is not a buffer")
		return
	}
	s := int(c.Payload())
	base = h - s
	n = s - 2
	readPtr = int(vm.Mem.ReadCell(base).Number())
	writePtr = int(vm.Mem.ReadCell(base + 1).Number())
	return
}

// BufWrite: (value ref -- ). Errors if the buffer is full.
func (vm *VM) BufWrite() error {
	ref := vm.Pop()
	base, n, readPtr, writePtr, err := vm.bufFields(ref)
	if err != nil {
		return err
	}
	value := vm.Pop()
	if n == 0 || writePtr-readPtr == n {
		return fmt.Errorf("buffer: write on full buffer")
	}
	idx := base + 2 + writePtr%n
	vm.Mem.WriteCell(idx, value)
	vm.Mem.WriteCell(base+1, EncodeNumber(float64(writePtr+1)))
	return nil
}

// BufRead: (ref -- value). Errors if the buffer is empty.
func (vm *VM) BufRead() error {
	ref := vm.Pop()
	base, n, readPtr, writePtr, err := vm.bufFields(ref)
	if err != nil {
		return err
	}
	if n == 0 || readPtr == writePtr {
		return fmt.Errorf("buffer: read on empty buffer")
	}
	value := vm.Mem.ReadCell(base + 2 + readPtr%n)
	vm.Mem.WriteCell(base, EncodeNumber(float64(readPtr+1)))
	vm.Push(value)
	return nil
}

// BufUnwrite: (ref -- ). Undoes the most recent write; a no-op on an
// already-empty buffer.
func (vm *VM) BufUnwrite() error {
	ref := vm.Pop()
	base, _, readPtr, writePtr, err := vm.bufFields(ref)
	if err != nil {
		return err
	}
	if writePtr == readPtr {
		return nil
	}
	vm.Mem.WriteCell(base+1, EncodeNumber(float64(writePtr-1)))
	return nil
}

// BufIsEmpty: (ref -- flag).
func (vm *VM) BufIsEmpty() error {
	ref := vm.Pop()
	_, _, readPtr, writePtr, err := vm.bufFields(ref)
	if err != nil {
		return err
	}
	vm.Push(EncodeNumber(boolNum(readPtr == writePtr)))
	return nil
}

// BufIsFull: (ref -- flag).
func (vm *VM) BufIsFull() error {
	ref := vm.Pop()
	_, n, readPtr, writePtr, err := vm.bufFields(ref)
	if err != nil {
		return err
	}
	vm.Push(EncodeNumber(boolNum(writePtr-readPtr == n)))
	return nil
}

// BufSize: (ref -- n).
func (vm *VM) BufSize() error {
	ref := vm.Pop()
	_, _, readPtr, writePtr, err := vm.bufFields(ref)
	if err != nil {
		return err
	}
	vm.Push(EncodeNumber(float64(writePtr - readPtr)))
	return nil
}
