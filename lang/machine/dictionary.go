package machine

import "github.com/dolthub/swiss"

// Dictionary is the heap-resident, append-only name table described in
// §4.8. Each entry is a 3-cell record written directly onto the global
// heap: [prevRef, value, nameSymbol]. prevRef chains entries into a linked
// list so that forget() can unwind heap allocation in the same LIFO order
// names were shadowed in; nameSymbol is a TagString cell pointing at the
// entry's name in the Digest.
//
// Lookup itself never walks the linked list: a swiss.Map cache keyed by
// name accelerates it to O(1). The linked list stays the single source of
// truth for mark/forget; the cache is rebuilt from it whenever entries are
// unwound, so a forget() that un-shadows an older definition of the same
// name makes that older definition visible again.
type Dictionary struct {
	vm    *VM
	head  int // absolute cell index of the most recent entry's base, -1 if empty
	cache *swiss.Map[string, int]
}

// NewDictionary creates an empty Dictionary over vm's heap.
func NewDictionary(vm *VM) *Dictionary {
	return &Dictionary{
		vm:    vm,
		head:  -1,
		cache: swiss.NewMap[string, int](256),
	}
}

const dictEntryCells = 3

// Define appends a new entry to the heap, shadowing any earlier definition
// of the same name.
func (d *Dictionary) Define(name string, value Cell) error {
	if d.vm.GP+dictEntryCells > d.vm.Mem.globalHeapLimit {
		return d.vm.fatalf("dictionary: heap exhausted defining %q", name)
	}
	nameOff := d.vm.Digest.Intern(name)
	base := d.vm.GP

	prev := NilCell
	if d.head >= 0 {
		prev = AsRef(d.head)
	}
	d.vm.Mem.WriteCell(base, prev)
	d.vm.Mem.WriteCell(base+1, value)
	d.vm.Mem.WriteCell(base+2, EncodeTagged(TagString, nameOff, false))

	d.vm.GP = base + dictEntryCells
	d.head = base
	d.cache.Put(name, base)
	return nil
}

// Lookup returns the value bound to name and true, or NilCell and false if
// name is not currently defined.
func (d *Dictionary) Lookup(name string) (Cell, bool) {
	base, ok := d.cache.Get(name)
	if !ok {
		return NilCell, false
	}
	return d.vm.Mem.ReadCell(base + 1), true
}

// entryName returns the name bound to the entry whose base cell is base, by
// reading its nameSymbol cell through the Digest. Used by rebuildCache when
// Forget rebuilds the cache.
func (d *Dictionary) entryName(base int) string {
	nameCell := d.vm.Mem.ReadCell(base + 2)
	return d.vm.Digest.Text(nameCell.Payload())
}

func (d *Dictionary) entryPrev(base int) int {
	prev := d.vm.Mem.ReadCell(base)
	if prev.IsDataRef() {
		return prev.RefIndex()
	}
	return -1
}

// Mark returns an opaque token identifying the current dictionary/heap
// high-water mark, to be passed to Forget later.
func (d *Dictionary) Mark() uint32 {
	return uint32(d.vm.GP)
}

// Forget unwinds every entry defined since mark, reclaiming their heap
// cells and restoring visibility of any definitions they shadowed.
func (d *Dictionary) Forget(mark uint32) {
	target := int(mark)
	cur := d.head
	for cur >= target {
		cur = d.entryPrev(cur)
	}
	d.head = cur
	d.vm.GP = target
	d.rebuildCache()
}

func (d *Dictionary) rebuildCache() {
	d.cache = swiss.NewMap[string, int](256)
	for cur := d.head; cur >= 0; cur = d.entryPrev(cur) {
		name := d.entryName(cur)
		if _, ok := d.cache.Get(name); !ok {
			d.cache.Put(name, cur)
		}
	}
}
