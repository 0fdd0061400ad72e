package compiler_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tacitlang/tacit/lang/compiler"
	"github.com/tacitlang/tacit/lang/machine"
)

// newTestCompiler returns a fresh VM and a Compiler bound to it.
func newTestCompiler(t *testing.T) (*machine.VM, *compiler.Compiler) {
	t.Helper()
	vm := machine.NewVM()
	c, err := compiler.New(vm)
	require.NoError(t, err)
	return vm, c
}

// run compiles src as one submission and executes it. A clean end-of-
// submission halt surfaces as *machine.AbortError carrying a NIL err
// (every Compile call appends an Abort); that is not reported as a test
// failure, only a genuine non-NIL err is.
func run(t *testing.T, vm *machine.VM, c *compiler.Compiler, src string) {
	t.Helper()
	require.NoError(t, c.Compile([]byte(src)))
	err := vm.Run()
	if err == nil {
		return
	}
	var abort *machine.AbortError
	if errors.As(err, &abort) && abort.Err.IsSentinel(machine.SentinelNil) {
		return
	}
	require.NoError(t, err)
}

func TestColonDefinitionAndCall(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, ": square dup mul ; 4 square")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(16), vm.Pop().Number())
}

func TestColonDefinitionRecursion(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, ": count-down dup 0 eq if else dup 1 - count-down ; ; 3 count-down")
	// the recursive calls leave every intermediate value on the stack: 3 2 1 0
	require.Equal(t, 4, vm.Depth())
	require.Equal(t, float64(0), vm.Pop().Number())
	require.Equal(t, float64(1), vm.Pop().Number())
	require.Equal(t, float64(2), vm.Pop().Number())
	require.Equal(t, float64(3), vm.Pop().Number())
}

func TestIfElse(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "1 if 100 else 200 ; 0 if 100 else 200 ;")
	require.Equal(t, 2, vm.Depth())
	require.Equal(t, float64(200), vm.Pop().Number())
	require.Equal(t, float64(100), vm.Pop().Number())
}

func TestWhenDoGuardedMultiBranch(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "5 when do 1 eq if 10 ; do 2 eq if 20 ; ;")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(5), vm.Pop().Number())
}

func TestWhenDoMatchingBranch(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "1 when do 1 eq if 10 ; do 2 eq if 20 ; ;")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(10), vm.Pop().Number())
}

func TestCaseOfDefault(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, `7 case 1 of "one" ; 2 of "two" ; DEFAULT "other" ; ;`)
	require.Equal(t, 1, vm.Depth())
	top := vm.Pop()
	require.True(t, top.Tag() == machine.TagString)
	require.Equal(t, "other", vm.Digest.Text(top.Payload()))
}

func TestCaseOfMatchingClause(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, `2 case 1 of "one" ; 2 of "two" ; DEFAULT "other" ; ;`)
	require.Equal(t, 1, vm.Depth())
	top := vm.Pop()
	require.Equal(t, "two", vm.Digest.Text(top.Payload()))
}

func TestLocalAssignAndRead(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, ": addten -> x x 10 + ; 5 addten")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(15), vm.Pop().Number())
}

func TestLocalIncrementInPlace(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, ": bump -> x 1 +> x x ; 5 bump")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(6), vm.Pop().Number())
}

func TestGlobalDeclareReadAndAssign(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "5 global counter counter 1 + -> counter counter")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(6), vm.Pop().Number())
}

// TestCompoundGlobalRoundTripPreservesListShape regression-tests a global
// holding a compound (LIST) value: an earlier version recorded a compound
// global's dictionary ref as the base address GPush would write the span
// to, rather than a fixed slot holding (or pointing to) its header, so a
// bare read materialized the wrong thing — the list's first payload cell
// verbatim instead of the list itself. Two separate bare reads must each
// independently re-materialize a correctly-shaped copy.
func TestCompoundGlobalRoundTripPreservesListShape(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "( 1 2 3 ) global lst lst lst")
	require.Equal(t, 8, vm.Depth())
	for i := 0; i < 2; i++ {
		header := vm.Pop()
		require.True(t, header.IsList())
		require.EqualValues(t, 3, header.Payload())
		require.Equal(t, float64(3), vm.Pop().Number())
		require.Equal(t, float64(2), vm.Pop().Number())
		require.Equal(t, float64(1), vm.Pop().Number())
	}
}

// TestCompoundGlobalReassignToNewShape exercises `-> name` reassigning an
// existing global from one compound shape to a differently-sized one: the
// slot-indirection StoreGlobal uses must relocate the new span rather than
// overwrite whatever follows the fixed slot cell in place (which is what a
// raw Store would have done).
func TestCompoundGlobalReassignToNewShape(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "( 1 2 ) global lst ( 9 8 7 ) -> lst lst")
	require.Equal(t, 4, vm.Depth())
	header := vm.Pop()
	require.True(t, header.IsList())
	require.EqualValues(t, 3, header.Payload())
	require.Equal(t, float64(7), vm.Pop().Number())
	require.Equal(t, float64(8), vm.Pop().Number())
	require.Equal(t, float64(9), vm.Pop().Number())
}

// TestGSweepUnwindsDictionaryAlongWithHeap regression-tests gmark/gsweep
// restoring the dictionary chain and lookup cache, not just the bare heap
// pointer. Dictionary lookups for a bare word resolve at compile time, so
// the mark/sweep pair and the intervening definition each need their own
// top-level submission (mirroring separate REPL lines) for gsweep's runtime
// rewind to take effect before the next submission compiles; the mark
// itself survives on the data stack across submissions, which Run never
// touches. Without the fix, gsweep only rewound vm.GP, leaving the swept
// entry (and the lookup cache) still resolving it — exactly the dangling
// state a later allocation over the same reclaimed cells would corrupt.
func TestGSweepUnwindsDictionaryAlongWithHeap(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, "gmark")

	run(t, vm, c, "2 global shadowed")
	_, ok := vm.Dict.Lookup("shadowed")
	require.True(t, ok)

	run(t, vm, c, "gsweep")
	_, ok = vm.Dict.Lookup("shadowed")
	require.False(t, ok, "gsweep must unwind the dictionary entry, not just the heap pointer")

	// the reclaimed heap space must be safe to reuse without corruption.
	run(t, vm, c, "9 global replacement replacement")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(9), vm.Pop().Number())
}

// TestStackUnderflowHaltsWithError exercises §7's "fatal runtime errors...
// halt the VM with a descriptive message": a bare `drop` on an empty stack
// must surface as an error, never crash the process.
func TestStackUnderflowHaltsWithError(t *testing.T) {
	vm, c := newTestCompiler(t)
	require.NoError(t, c.Compile([]byte("drop")))
	err := vm.Run()
	require.Error(t, err)
	var abort *machine.AbortError
	require.False(t, errors.As(err, &abort))
}

// TestBufferRingViaLocalRef exercises §4.12's ring buffer example. Buffer
// mutation requires the DATA_REF itself, not a value-by-default copy, so
// every buffer operand here is the local ref `&b` rather than the bare
// `b` the specification's prose example writes; §8's text is read as
// shorthand, the same way its when/do example is read as implementer-
// decided (see DESIGN.md).
func TestBufferRingViaLocalRef(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, `3 buffer var b
		1 &b write
		2 &b write
		3 &b write
		&b read
		4 &b write
		&b read &b read &b read`)
	require.Equal(t, 4, vm.Depth())
	require.Equal(t, float64(4), vm.Pop().Number())
	require.Equal(t, float64(3), vm.Pop().Number())
	require.Equal(t, float64(2), vm.Pop().Number())
	require.Equal(t, float64(1), vm.Pop().Number())
}

func TestFinallyRunsCleanupOnNormalReturn(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, ": f 1 finally 2 ; f")
	require.Equal(t, 2, vm.Depth())
	require.Equal(t, float64(2), vm.Pop().Number())
	require.Equal(t, float64(1), vm.Pop().Number())
}

func TestFinallyRunsCleanupAfterErrorThenPropagates(t *testing.T) {
	vm, c := newTestCompiler(t)
	require.NoError(t, c.Compile([]byte(`: f 1 "boom" set-err finally 99 ; f`)))
	err := vm.Run()
	var abort *machine.AbortError
	require.True(t, errors.As(err, &abort))
	require.False(t, abort.Err.IsSentinel(machine.SentinelNil))
	require.Equal(t, "boom", vm.Digest.Text(abort.Err.Payload()))
	// the cleanup region still ran (99 pushed) even though the body errored;
	// the body's own value (1) is also still on the stack, since unwinding a
	// frame does not touch the data stack, only the return stack and BP.
	require.Equal(t, 2, vm.Depth())
	require.Equal(t, float64(99), vm.Pop().Number())
	require.Equal(t, float64(1), vm.Pop().Number())
}

func TestAmpLocalRefOnSimpleLocalIsSameAsValue(t *testing.T) {
	vm, c := newTestCompiler(t)
	run(t, vm, c, ": f -> x &x ; 7 f")
	require.Equal(t, 1, vm.Depth())
	require.Equal(t, float64(7), vm.Pop().Number())
}

func TestAtSigilIsReserved(t *testing.T) {
	vm, c := newTestCompiler(t)
	err := c.Compile([]byte(": f @x ;"))
	require.Error(t, err)
	_ = vm
}

func TestDuplicateDefaultIsError(t *testing.T) {
	_, c := newTestCompiler(t)
	err := c.Compile([]byte(`1 case 1 of "one" ; DEFAULT "a" ; DEFAULT "b" ; ;`))
	require.Error(t, err)
}

func TestUnclosedDefinitionIsError(t *testing.T) {
	_, c := newTestCompiler(t)
	err := c.Compile([]byte(": f dup mul"))
	require.Error(t, err)
}
