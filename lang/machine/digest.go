package machine

import "github.com/dolthub/swiss"

// Digest is the interned string table: it stores each distinct string once
// in the memory's string segment and returns a stable 16-bit offset that
// doubles as a dictionary key. Lookup by string is backed by a swiss.Map for
// O(1) amortized dedup, the same hash-map structure the teacher's machine
// package uses for Tacit-analogous "map many strings/values to a slot"
// problems.
type Digest struct {
	mem    *Memory
	byText *swiss.Map[string, uint16]
}

// NewDigest creates a Digest that interns into mem's string segment.
func NewDigest(mem *Memory) *Digest {
	return &Digest{
		mem:    mem,
		byText: swiss.NewMap[string, uint16](64),
	}
}

// Intern returns the stable offset for s, storing it in the string segment
// on first encounter and returning the cached offset on subsequent calls.
func (d *Digest) Intern(s string) uint16 {
	if off, ok := d.byText.Get(s); ok {
		return off
	}
	if len(s) > 255 {
		s = s[:255]
	}
	off := d.mem.InternString(s)
	d.byText.Put(s, off)
	return off
}

// Lookup returns the offset for s without interning it, if already present.
func (d *Digest) Lookup(s string) (uint16, bool) {
	return d.byText.Get(s)
}

// Text returns the interned string stored at off.
func (d *Digest) Text(off uint16) string {
	return d.mem.ReadString(off)
}
