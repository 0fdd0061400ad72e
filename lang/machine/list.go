package machine

import "fmt"

// This file implements §4.4 (list construction, query, materialization,
// mutation, structural ops). Reverse layout: the payload of a list occupies
// the cells immediately below its LIST header, which always sits at the top
// of the span (§3). cons/head/tail/uncons are the O(1) primitives and
// operate at the header-adjacent end of the payload (the most recently
// cons'd value); elem/length/keys/values/find/concat/reverse instead walk
// the list in address-increasing ("base-first") order, so that for a
// literal `( 1 2 3 )`, elem(0) is 1 — the first token written — matching
// the order `slot` already uses. These are two independent conventions
// over the same physical layout: nothing in the spec ties head(list) to
// elem(0,list), and keeping them separate is what lets cons stay O(1) while
// elem/length read in source order (see DESIGN.md).

// OpenList begins a `(` ... `)` list construction: it records the current
// SP as a mark and increments listDepth.
func (vm *VM) OpenList() {
	vm.listMarks = append(vm.listMarks, vm.SP)
	vm.listDepth++
}

// CloseList ends a `(` ... `)` construction: it counts the raw cells pushed
// since the matching mark and pushes a LIST header recording that count.
func (vm *VM) CloseList() error {
	if len(vm.listMarks) == 0 {
		return fmt.Errorf("unbalanced list close: no matching open")
	}
	mark := vm.listMarks[len(vm.listMarks)-1]
	vm.listMarks = vm.listMarks[:len(vm.listMarks)-1]
	vm.listDepth--
	s := vm.SP - mark
	if s > 0xFFFF {
		return fmt.Errorf("list too large: %d cells", s)
	}
	vm.Push(EncodeTagged(TagList, uint16(s), false))
	return nil
}

// Pack builds a list from the top n stack items (their own current spans),
// where n itself is popped from the stack as a NUMBER.
func (vm *VM) Pack() error {
	vm.requireDepth(1)
	nCell := vm.Pop()
	if !nCell.IsNumber() {
		return fmt.Errorf("pack expects a numeric count")
	}
	n := int(nCell.Number())
	idx := vm.SP - 1
	for i := 0; i < n; i++ {
		vm.requireDepth(1)
		span := vm.spanEndingAt(idx)
		idx -= span
	}
	itemsStart := idx + 1
	s := vm.SP - itemsStart
	if s > 0xFFFF {
		return fmt.Errorf("list too large: %d cells", s)
	}
	vm.Push(EncodeTagged(TagList, uint16(s), false))
	return nil
}

// Unpack is the inverse of Pack: it removes the LIST header from TOS,
// leaving the payload cells in place as individual stack items.
func (vm *VM) Unpack() error {
	top := vm.Top()
	if !top.IsList() {
		return fmt.Errorf("unpack expects a list")
	}
	vm.SP--
	return nil
}

// popList pops the full span of the list at TOS and returns its base
// address and raw slot count.
func (vm *VM) popList() (base, s int, err error) {
	vm.requireDepth(1)
	headerIdx := vm.SP - 1
	c := vm.Mem.ReadCell(headerIdx)
	if !c.IsList() {
		return 0, 0, fmt.Errorf("expected a list, got a non-list value")
	}
	s = int(c.Payload())
	base = headerIdx - s
	vm.requireDepth(s + 1)
	vm.SP -= s + 1
	return base, s, nil
}

// Slots pushes the raw slot count of the list at TOS.
func (vm *VM) Slots() error {
	_, s, err := vm.popList()
	if err != nil {
		return err
	}
	vm.Push(EncodeNumber(float64(s)))
	return nil
}

// elemAddrsBaseFirst returns the address of each logical element's topmost
// cell, in base-first (address-increasing) order: result[0] is the element
// closest to the list's base.
func (vm *VM) elemAddrsBaseFirst(headerIdx, s int) []int {
	var addrs []int
	pos := headerIdx - 1
	remaining := s
	for remaining > 0 {
		span := vm.spanEndingAt(pos)
		addrs = append(addrs, pos)
		pos -= span
		remaining -= span
	}
	for i, j := 0, len(addrs)-1; i < j; i, j = i+1, j-1 {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	}
	return addrs
}

// Length pushes the logical element count of the list at TOS.
func (vm *VM) Length() error {
	headerIdx := vm.SP - 1
	vm.requireDepth(1)
	c := vm.Mem.ReadCell(headerIdx)
	if !c.IsList() {
		return fmt.Errorf("length expects a list")
	}
	s := int(c.Payload())
	vm.requireDepth(s + 1)
	addrs := vm.elemAddrsBaseFirst(headerIdx, s)
	vm.SP -= s + 1
	vm.Push(EncodeNumber(float64(len(addrs))))
	return nil
}

// Slot: (i list -- addr). O(1) raw payload cell address.
func (vm *VM) Slot() error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	iCell := vm.Pop()
	if !iCell.IsNumber() {
		return fmt.Errorf("slot expects a numeric index")
	}
	i := int(iCell.Number())
	if i < 0 || i >= s {
		vm.Push(NilCell)
		return nil
	}
	vm.Push(AsRef(base + i))
	return nil
}

// Elem: (i list -- addr). O(length) logical element address, base-first.
func (vm *VM) Elem() error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	iCell := vm.Pop()
	if !iCell.IsNumber() {
		return fmt.Errorf("elem expects a numeric index")
	}
	i := int(iCell.Number())
	addrs := vm.elemAddrsBaseFirst(base+s, s)
	if i < 0 || i >= len(addrs) {
		vm.Push(NilCell)
		return nil
	}
	vm.Push(AsRef(addrs[i]))
	return nil
}

// fetchValueAt pushes a materialized copy of the value found at absolute
// cell address addr (header+payload if a LIST, the cell verbatim
// otherwise). This is the shared core of Fetch, Load, and the
// list-materializing ops (keys/values/reverse, via materializeAddrsAsList).
func (vm *VM) fetchValueAt(addr int) {
	c := vm.Mem.ReadCell(addr)
	if !c.IsList() {
		vm.Push(c)
		return
	}
	s := int(c.Payload())
	base := addr - s
	cells := vm.readSpan(base, s+1)
	vm.writeSpan(vm.SP, cells)
	vm.SP += s + 1
}

func (vm *VM) materializeAddrsAsList(addrs []int) {
	mark := vm.SP
	for _, a := range addrs {
		vm.fetchValueAt(a)
	}
	s := vm.SP - mark
	vm.Push(EncodeTagged(TagList, uint16(s), false))
}

// Find: (key maplist -- addr|nil). Linear scan over (key, value) pairs at
// even/odd base-first element positions; the symbol `default` as a key
// supplies a fallback if no exact match is found.
func (vm *VM) Find(defaultSymbolOffset uint16) error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	keyCell := vm.Pop()
	addrs := vm.elemAddrsBaseFirst(base+s, s)

	var fallback int = -1
	for k := 0; k+1 < len(addrs); k += 2 {
		kc := vm.Mem.ReadCell(addrs[k])
		if cellsEqual(kc, keyCell) {
			vm.Push(AsRef(addrs[k+1]))
			return nil
		}
		if kc.IsTagged() && kc.Tag() == TagString && kc.Payload() == defaultSymbolOffset {
			fallback = addrs[k+1]
		}
	}
	if fallback >= 0 {
		vm.Push(AsRef(fallback))
		return nil
	}
	vm.Push(NilCell)
	return nil
}

func cellsEqual(a, b Cell) bool {
	if a.IsNumber() != b.IsNumber() {
		return false
	}
	if a.IsNumber() {
		return a.Number() == b.Number()
	}
	return a == b
}

// Keys materializes the even-indexed (base-first) elements of a maplist as
// a new list.
func (vm *VM) Keys() error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	addrs := vm.elemAddrsBaseFirst(base+s, s)
	var keys []int
	for k := 0; k < len(addrs); k += 2 {
		keys = append(keys, addrs[k])
	}
	vm.materializeAddrsAsList(keys)
	return nil
}

// Values materializes the odd-indexed (base-first) elements of a maplist as
// a new list.
func (vm *VM) Values() error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	addrs := vm.elemAddrsBaseFirst(base+s, s)
	var vals []int
	for k := 1; k < len(addrs); k += 2 {
		vals = append(vals, addrs[k])
	}
	vm.materializeAddrsAsList(vals)
	return nil
}

// Cons: (list value -- list'). O(1): the value is shifted down into the
// slot vacated by the list's old header, and a new header (slotCount+1) is
// written on top.
func (vm *VM) Cons() error {
	vm.requireDepth(1)
	valueSpan := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(valueSpan + 1)
	headerIdx := vm.SP - 1 - valueSpan
	oldHeader := vm.Mem.ReadCell(headerIdx)
	if !oldHeader.IsList() {
		return fmt.Errorf("cons expects a list")
	}
	oldS := int(oldHeader.Payload())
	valueCells := vm.readSpan(headerIdx+1, valueSpan)
	vm.writeSpan(headerIdx, valueCells)
	newHeaderIdx := headerIdx + valueSpan
	newS := oldS + valueSpan
	if newS > 0xFFFF {
		return fmt.Errorf("list too large: %d cells", newS)
	}
	vm.Mem.WriteCell(newHeaderIdx, EncodeTagged(TagList, uint16(newS), false))
	vm.SP = newHeaderIdx + 1
	return nil
}

// Head: (list -- value). Materializes a copy of the header-adjacent
// (most-recently-cons'd) element, consuming the list.
func (vm *VM) Head() error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	if s == 0 {
		vm.Push(NilCell)
		return nil
	}
	headerWas := base + s
	headSpan := vm.spanEndingAt(headerWas - 1)
	cells := vm.readSpan(headerWas-headSpan, headSpan)
	vm.writeSpan(vm.SP, cells)
	vm.SP += headSpan
	return nil
}

// Tail: (list -- list'). O(1): drops the header-adjacent element and
// rewrites the header in place with a smaller slot count.
func (vm *VM) Tail() error {
	vm.requireDepth(1)
	headerIdx := vm.SP - 1
	c := vm.Mem.ReadCell(headerIdx)
	if !c.IsList() {
		return fmt.Errorf("tail expects a list")
	}
	s := int(c.Payload())
	if s == 0 {
		// ( ) tail = ( ), nothing to remove.
		return nil
	}
	headSpan := vm.spanEndingAt(headerIdx - 1)
	newHeaderPos := headerIdx - headSpan
	newS := s - headSpan
	vm.Mem.WriteCell(newHeaderPos, EncodeTagged(TagList, uint16(newS), false))
	vm.SP = newHeaderPos + 1
	return nil
}

// Uncons: (list -- list' value). Combines Tail and Head in one pass.
func (vm *VM) Uncons() error {
	vm.requireDepth(1)
	headerIdx := vm.SP - 1
	c := vm.Mem.ReadCell(headerIdx)
	if !c.IsList() {
		return fmt.Errorf("uncons expects a list")
	}
	s := int(c.Payload())
	if s == 0 {
		vm.Push(NilCell)
		return nil
	}
	headSpan := vm.spanEndingAt(headerIdx - 1)
	valueCells := vm.readSpan(headerIdx-headSpan, headSpan)
	newHeaderPos := headerIdx - headSpan
	newS := s - headSpan
	vm.Mem.WriteCell(newHeaderPos, EncodeTagged(TagList, uint16(newS), false))
	vm.SP = newHeaderPos + 1
	vm.writeSpan(vm.SP, valueCells)
	vm.SP += headSpan
	return nil
}

// Append: (list value -- list'). O(slots(list)): the new value becomes the
// new elem(0) (the base end), so the existing payload shifts up to make
// room — the structural counterpart to Cons, which adds at the O(1) header
// end instead.
func (vm *VM) Append() error {
	vm.requireDepth(1)
	valueSpan := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(valueSpan + 1)
	headerIdx := vm.SP - 1 - valueSpan
	listC := vm.Mem.ReadCell(headerIdx)
	if !listC.IsList() {
		return fmt.Errorf("append expects a list")
	}
	oldS := int(listC.Payload())
	base := headerIdx - oldS
	valueCells := vm.readSpan(vm.SP-valueSpan, valueSpan)
	payloadAndHeader := vm.readSpan(base, oldS+1)
	vm.writeSpan(base+valueSpan, payloadAndHeader)
	vm.writeSpan(base, valueCells)
	newHeaderIdx := base + valueSpan + oldS
	newS := oldS + valueSpan
	if newS > 0xFFFF {
		return fmt.Errorf("list too large: %d cells", newS)
	}
	vm.Mem.WriteCell(newHeaderIdx, EncodeTagged(TagList, uint16(newS), false))
	return nil
}

// Concat: (listA listB -- listC). A's payload stays in place at the base;
// B's payload shifts down by one cell (into the slot vacated by A's old
// header) and a combined header is written on top. O(slots(B)).
func (vm *VM) Concat() error {
	vm.requireDepth(1)
	bHeaderIdx := vm.SP - 1
	bC := vm.Mem.ReadCell(bHeaderIdx)
	if !bC.IsList() {
		return fmt.Errorf("concat expects two lists")
	}
	sB := int(bC.Payload())
	baseB := bHeaderIdx - sB
	vm.requireDepth(sB + 2)
	aHeaderIdx := baseB - 1
	aC := vm.Mem.ReadCell(aHeaderIdx)
	if !aC.IsList() {
		return fmt.Errorf("concat expects two lists")
	}
	sA := int(aC.Payload())
	vm.requireDepth(sA + sB + 2)

	bPayload := vm.readSpan(baseB, sB)
	vm.writeSpan(aHeaderIdx, bPayload)
	newHeaderPos := aHeaderIdx + sB
	newS := sA + sB
	if newS > 0xFFFF {
		return fmt.Errorf("list too large: %d cells", newS)
	}
	vm.Mem.WriteCell(newHeaderPos, EncodeTagged(TagList, uint16(newS), false))
	vm.SP = newHeaderPos + 1
	return nil
}

// Reverse: (list -- list'). Reverses base-first logical element order.
func (vm *VM) Reverse() error {
	base, s, err := vm.popList()
	if err != nil {
		return err
	}
	addrs := vm.elemAddrsBaseFirst(base+s, s)
	for i, j := 0, len(addrs)-1; i < j; i, j = i+1, j-1 {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	}
	vm.materializeAddrsAsList(addrs)
	return nil
}
