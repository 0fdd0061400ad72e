package machine_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tacitlang/tacit/lang/machine"
)

func newTestVM() *machine.VM {
	mem := machine.NewMemorySized(4*1024, 64, 64, 1024, 1024)
	return machine.NewVMMemory(mem)
}

func TestCellNumberRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, -1, 42, -42.5, 1000000} {
		c := machine.EncodeNumber(v)
		require.True(t, c.IsNumber())
		require.InDelta(t, v, c.Number(), 0.001)
	}
}

func TestCellTaggedRoundTrip(t *testing.T) {
	c := machine.EncodeTagged(machine.TagList, 7, true)
	require.True(t, c.IsTagged())
	require.Equal(t, machine.TagList, c.Tag())
	require.EqualValues(t, 7, c.Payload())
	require.True(t, c.Meta())
	require.True(t, c.IsList())
}

func TestStackDupSwapOverWithCompound(t *testing.T) {
	vm := newTestVM()
	vm.Push(machine.EncodeNumber(1))
	vm.OpenList()
	vm.Push(machine.EncodeNumber(2))
	vm.Push(machine.EncodeNumber(3))
	require.NoError(t, vm.CloseList()) // stack: 1 (2 3)

	vm.Dup() // 1 (2 3) (2 3)
	require.Equal(t, 7, vm.Depth())

	vm.Drop() // 1 (2 3)
	require.Equal(t, 4, vm.Depth())

	vm.Swap() // (2 3) 1
	require.True(t, vm.Top().IsNumber())
	require.Equal(t, float64(1), vm.Top().Number())

	vm.Over() // (2 3) 1 (2 3)
	require.True(t, vm.Top().IsList())
}

func TestStackPick(t *testing.T) {
	vm := newTestVM()
	vm.Push(machine.EncodeNumber(10))
	vm.Push(machine.EncodeNumber(20))
	vm.Push(machine.EncodeNumber(30))
	vm.Push(machine.EncodeNumber(1)) // pick index
	require.NoError(t, vm.Pick())
	require.Equal(t, float64(20), vm.Top().Number())
}

func TestListPackUnpackRoundTrip(t *testing.T) {
	vm := newTestVM()
	vm.Push(machine.EncodeNumber(1))
	vm.Push(machine.EncodeNumber(2))
	vm.Push(machine.EncodeNumber(3))
	vm.Push(machine.EncodeNumber(3))
	require.NoError(t, vm.Pack())
	require.True(t, vm.Top().IsList())
	require.EqualValues(t, 3, vm.Top().Payload())

	require.NoError(t, vm.Unpack())
	require.Equal(t, 3, vm.Depth())
	require.Equal(t, float64(3), vm.Pop().Number())
	require.Equal(t, float64(2), vm.Pop().Number())
	require.Equal(t, float64(1), vm.Pop().Number())
}

func TestListElemBaseFirstOrder(t *testing.T) {
	vm := newTestVM()
	vm.OpenList()
	vm.Push(machine.EncodeNumber(10))
	vm.Push(machine.EncodeNumber(20))
	vm.Push(machine.EncodeNumber(30))
	require.NoError(t, vm.CloseList()) // (10 20 30)

	vm.Push(machine.EncodeNumber(0))
	vm.Swap() // (i list -- addr): the index goes beneath the list
	require.NoError(t, vm.Elem())
	ref := vm.Pop()
	require.True(t, ref.IsDataRef())

	vm.Push(ref)
	require.NoError(t, vm.Fetch())
	require.Equal(t, float64(10), vm.Pop().Number())
}

func TestListConsThenHeadReturnsValue(t *testing.T) {
	vm := newTestVM()
	vm.OpenList()
	vm.Push(machine.EncodeNumber(1))
	vm.Push(machine.EncodeNumber(2))
	require.NoError(t, vm.CloseList()) // (1 2)

	vm.Push(machine.EncodeNumber(99))
	require.NoError(t, vm.Cons()) // (1 2) 99 cons -- list'
	require.True(t, vm.Top().IsList())
	require.EqualValues(t, 3, vm.Top().Payload())

	require.NoError(t, vm.Head())
	require.Equal(t, float64(99), vm.Pop().Number())
}

func TestListAppendAddsAtBase(t *testing.T) {
	vm := newTestVM()
	vm.OpenList()
	vm.Push(machine.EncodeNumber(2))
	vm.Push(machine.EncodeNumber(3))
	require.NoError(t, vm.CloseList()) // (2 3)

	vm.Push(machine.EncodeNumber(1))
	require.NoError(t, vm.Append()) // append 1 at the base -- (1 2 3)
	require.EqualValues(t, 3, vm.Top().Payload())

	vm.Push(machine.EncodeNumber(0))
	vm.Swap() // (i list -- addr): the index goes beneath the list
	require.NoError(t, vm.Elem())
	ref := vm.Pop()
	vm.Push(ref)
	require.NoError(t, vm.Fetch())
	require.Equal(t, float64(1), vm.Pop().Number())
}

func TestListConcatOrder(t *testing.T) {
	vm := newTestVM()
	vm.OpenList()
	vm.Push(machine.EncodeNumber(1))
	vm.Push(machine.EncodeNumber(2))
	require.NoError(t, vm.CloseList()) // A = (1 2)

	vm.OpenList()
	vm.Push(machine.EncodeNumber(3))
	vm.Push(machine.EncodeNumber(4))
	require.NoError(t, vm.CloseList()) // B = (3 4)

	require.NoError(t, vm.Concat())
	require.True(t, vm.Top().IsList())
	require.EqualValues(t, 4, vm.Top().Payload())
}

func TestDictionaryDefineLookupForget(t *testing.T) {
	vm := newTestVM()
	mark := vm.Dict.Mark()

	require.NoError(t, vm.Dict.Define("square", machine.EncodeTagged(machine.TagCode, 200, false)))
	v, ok := vm.Dict.Lookup("square")
	require.True(t, ok)
	require.Equal(t, machine.TagCode, v.Tag())

	require.NoError(t, vm.Dict.Define("square", machine.EncodeTagged(machine.TagCode, 300, false)))
	v, ok = vm.Dict.Lookup("square")
	require.True(t, ok)
	require.EqualValues(t, 300, v.Payload())

	vm.Dict.Forget(mark)
	_, ok = vm.Dict.Lookup("square")
	require.False(t, ok)
}

func TestDictionaryShadowingRestoredOnForget(t *testing.T) {
	vm := newTestVM()
	require.NoError(t, vm.Dict.Define("x", machine.EncodeNumber(1)))
	mark := vm.Dict.Mark()
	require.NoError(t, vm.Dict.Define("x", machine.EncodeNumber(2)))

	v, _ := vm.Dict.Lookup("x")
	require.Equal(t, float64(2), v.Number())

	vm.Dict.Forget(mark)
	v, ok := vm.Dict.Lookup("x")
	require.True(t, ok)
	require.Equal(t, float64(1), v.Number())
}

func TestArithBroadcastScalarOverList(t *testing.T) {
	vm := newTestVM()
	vm.OpenList()
	vm.Push(machine.EncodeNumber(1))
	vm.Push(machine.EncodeNumber(2))
	vm.Push(machine.EncodeNumber(3))
	require.NoError(t, vm.CloseList())
	vm.Push(machine.EncodeNumber(10))

	require.NoError(t, vm.Add()) // (1 2 3) 10 add -- (11 12 13)
	require.True(t, vm.Top().IsList())
	require.EqualValues(t, 3, vm.Top().Payload())
}

func TestArithBroadcastListTimesListCyclesShorterOperand(t *testing.T) {
	vm := newTestVM()
	vm.OpenList()
	vm.Push(machine.EncodeNumber(1))
	vm.Push(machine.EncodeNumber(2))
	vm.Push(machine.EncodeNumber(3))
	vm.Push(machine.EncodeNumber(4))
	require.NoError(t, vm.CloseList()) // (1 2 3 4)

	vm.OpenList()
	vm.Push(machine.EncodeNumber(1))
	vm.Push(machine.EncodeNumber(2))
	require.NoError(t, vm.CloseList()) // (1 2)

	// (1 2 3 4) (1 2) add -- (2 4 4 6): the shorter list cycles modulo its
	// own length instead of erroring on the length mismatch.
	require.NoError(t, vm.Add())
	header := vm.Pop()
	require.True(t, header.IsList())
	require.EqualValues(t, 4, header.Payload())
	require.Equal(t, float64(6), vm.Pop().Number())
	require.Equal(t, float64(4), vm.Pop().Number())
	require.Equal(t, float64(4), vm.Pop().Number())
	require.Equal(t, float64(2), vm.Pop().Number())
}

func TestArithComparisonAndLogic(t *testing.T) {
	vm := newTestVM()
	vm.Push(machine.EncodeNumber(3))
	vm.Push(machine.EncodeNumber(5))
	require.NoError(t, vm.Lt())
	require.Equal(t, float64(1), vm.Pop().Number())

	vm.Push(machine.EncodeNumber(0))
	vm.Push(machine.EncodeNumber(1))
	require.NoError(t, vm.LogOr())
	require.Equal(t, float64(1), vm.Pop().Number())
}

func TestBufferWriteReadFullCycle(t *testing.T) {
	vm := newTestVM()
	vm.Push(machine.EncodeNumber(3))
	require.NoError(t, vm.Buffer())
	bufHeader := vm.SP - 1
	ref := machine.AsRef(bufHeader)

	for _, v := range []float64{1, 2, 3} {
		vm.Push(machine.EncodeNumber(v))
		vm.Push(ref)
		require.NoError(t, vm.BufWrite())
	}

	vm.Push(ref)
	require.NoError(t, vm.BufIsFull())
	require.Equal(t, float64(1), vm.Pop().Number())

	vm.Push(machine.EncodeNumber(4))
	vm.Push(ref)
	require.Error(t, vm.BufWrite()) // full: write errors

	vm.Push(ref)
	require.NoError(t, vm.BufRead())
	require.Equal(t, float64(1), vm.Pop().Number())

	vm.Push(machine.EncodeNumber(4))
	vm.Push(ref)
	require.NoError(t, vm.BufWrite()) // room again after one read

	vm.Push(ref)
	require.NoError(t, vm.BufRead())
	require.Equal(t, float64(2), vm.Pop().Number())
	vm.Push(ref)
	require.NoError(t, vm.BufRead())
	require.Equal(t, float64(3), vm.Pop().Number())
	vm.Push(ref)
	require.NoError(t, vm.BufRead())
	require.Equal(t, float64(4), vm.Pop().Number())

	vm.Push(ref)
	require.NoError(t, vm.BufIsEmpty())
	require.Equal(t, float64(1), vm.Pop().Number())

	vm.Push(ref)
	require.Error(t, vm.BufRead()) // empty: read errors
}

func TestRunSquareProgram(t *testing.T) {
	vm := newTestVM()

	vm.Mem.EmitByte(byte(machine.LiteralNumber))
	vm.Mem.EmitUint32(uint32(machine.EncodeNumber(4)))
	vm.Mem.EmitByte(byte(machine.Dup))
	vm.Mem.EmitByte(byte(machine.Mul))

	require.NoError(t, vm.Run())
	require.Equal(t, float64(16), vm.Top().Number())
}

func TestRunColonCallAndExit(t *testing.T) {
	vm := newTestVM()

	// user word "square" at address 0: dup mul exit
	wordAddr := vm.Mem.CodeLen()
	vm.Mem.EmitByte(byte(machine.Dup))
	vm.Mem.EmitByte(byte(machine.Mul))
	vm.Mem.EmitByte(byte(machine.Exit))

	// main: literal 5, call wordAddr (compact user-call form)
	mainAddr := vm.Mem.CodeLen()
	vm.Mem.EmitByte(byte(machine.LiteralNumber))
	vm.Mem.EmitUint32(uint32(machine.EncodeNumber(5)))
	vm.Mem.EmitByte(byte(0x80 | byte(wordAddr>>8)))
	vm.Mem.EmitByte(byte(wordAddr & 0xFF))

	vm.IP = mainAddr
	require.NoError(t, vm.Run())
	require.Equal(t, float64(25), vm.Top().Number())
}
