package machine

import (
	"fmt"
	"io"
	"os"
)

// VM holds all registers and memory for one Tacit execution context. There
// is exactly one instruction pointer and no preemption: the interpreter
// loop runs an opcode to completion before looking at the next one (§5).
type VM struct {
	Mem    *Memory
	Digest *Digest
	Dict   *Dictionary

	SP  int // data stack pointer: absolute cell index of first free cell
	RSP int // return stack pointer: absolute cell index of first free cell
	BP  int // base pointer: absolute cell index of current frame's locals
	GP  int // global heap pointer: absolute cell index of first free heap cell
	IP  int // instruction pointer: byte offset into the code segment

	Err       Cell // set by SetErr; consulted by the finally/unwind protocol
	InFinally bool

	listDepth int // nesting depth of open "(" ... ")" list constructions
	listMarks []int

	MaxSteps int  // 0 means unlimited
	Trace    bool // when true, each executed opcode is appended to Trace log

	Out io.Writer // destination for Print/PrintStack; defaults to os.Stdout

	steps    int
	traceLog []string

	halted bool
}

// NewVM builds a VM over a fresh Memory with default segment sizes.
func NewVM() *VM {
	return NewVMMemory(NewMemory())
}

// NewVMMemory builds a VM over the given Memory, initializing all registers
// to the base of their respective regions.
func NewVMMemory(mem *Memory) *VM {
	vm := &VM{
		Mem:    mem,
		Digest: NewDigest(mem),
		Out:    os.Stdout,
	}
	vm.Dict = NewDictionary(vm)
	vm.SP = mem.dataStackBase
	vm.RSP = mem.returnStackBase
	vm.BP = mem.returnStackBase
	vm.GP = mem.globalHeapBase
	vm.IP = 0
	vm.Err = NilCell
	return vm
}

// fatalf raises a fatal invariant violation. Fatal errors halt the VM; they
// are never surfaced as NIL (§4.1, §7).
func (vm *VM) fatalf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Push pushes a single cell onto the data stack.
func (vm *VM) Push(c Cell) {
	if vm.SP >= vm.Mem.dataStackLimit {
		panic("machine: data stack overflow")
	}
	vm.Mem.WriteCell(vm.SP, c)
	vm.SP++
}

// Pop pops and returns the top single cell of the data stack. It is not
// span-aware: if a LIST header sits at TOS, only the header is removed
// (Drop removes the whole span).
func (vm *VM) Pop() Cell {
	if vm.SP <= vm.Mem.dataStackBase {
		panic("machine: data stack underflow")
	}
	vm.SP--
	return vm.Mem.ReadCell(vm.SP)
}

// Top returns the top single cell of the data stack without popping it.
func (vm *VM) Top() Cell {
	if vm.SP <= vm.Mem.dataStackBase {
		panic("machine: data stack underflow")
	}
	return vm.Mem.ReadCell(vm.SP - 1)
}

// Depth returns the current number of occupied cells on the data stack.
func (vm *VM) Depth() int { return vm.SP - vm.Mem.dataStackBase }

// RPush pushes a single cell onto the return stack.
func (vm *VM) RPush(c Cell) {
	if vm.RSP >= vm.Mem.returnStackLimit {
		panic("machine: return stack overflow")
	}
	vm.Mem.WriteCell(vm.RSP, c)
	vm.RSP++
}

// RPop pops and returns the top cell of the return stack.
func (vm *VM) RPop() Cell {
	if vm.RSP <= vm.Mem.returnStackBase {
		panic("machine: return stack underflow")
	}
	vm.RSP--
	return vm.Mem.ReadCell(vm.RSP)
}

// spanEndingAt returns the span (in cells) of the logical value whose
// topmost (highest-address) cell is at absolute index headerIdx: 1 for a
// simple cell, 1+slotCount if that cell is a LIST header.
func (vm *VM) spanEndingAt(headerIdx int) int {
	c := vm.Mem.ReadCell(headerIdx)
	if c.IsList() {
		return int(c.Payload()) + 1
	}
	return 1
}

func (vm *VM) requireDepth(cells int) {
	if vm.Depth() < cells {
		panic(fmt.Sprintf("machine: stack underflow: need %d cells, have %d", cells, vm.Depth()))
	}
}

func (vm *VM) readSpan(start, n int) []Cell {
	out := make([]Cell, n)
	for i := 0; i < n; i++ {
		out[i] = vm.Mem.ReadCell(start + i)
	}
	return out
}

func (vm *VM) writeSpan(start int, cells []Cell) {
	for i, c := range cells {
		vm.Mem.WriteCell(start+i, c)
	}
}
