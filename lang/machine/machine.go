package machine

import "fmt"

// This file implements the fetch-decode-execute loop of §5. There is no
// preemption: Step runs exactly one instruction — a builtin opcode or a
// user-code call — to completion before returning. Compiled code mixes two
// call encodings: the compact two-byte user-code form (first byte's high
// bit set, the remaining 15 bits an address) used whenever a word
// reference is known at compile time, and the explicit Eval opcode used to
// dispatch a CODE-tagged value that only became known at runtime (e.g.
// fetched out of the dictionary or off a local).

// AbortError is returned by Run/Step when compiled code executes Abort. It
// carries whatever value was last set via SetErr.
type AbortError struct {
	VM  *VM
	Err Cell
}

func (e *AbortError) Error() string {
	if e.Err.IsSentinel(SentinelNil) {
		return "tacit: aborted"
	}
	return fmt.Sprintf("tacit: aborted: %s", e.VM.formatCellValue(e.Err))
}

// formatCellValue renders a bare Cell that isn't necessarily addressable in
// memory (e.g. one just popped off the stack for SetErr). Compound LIST
// values can't be expanded without their payload's address, so they render
// opaquely.
func (vm *VM) formatCellValue(c Cell) string {
	if c.IsNumber() {
		return formatNumber(c.Number())
	}
	switch c.Tag() {
	case TagSentinel:
		if Sentinel(c.Payload()) == SentinelNil {
			return "nil"
		}
		return Sentinel(c.Payload()).String()
	case TagString:
		return vm.Digest.Text(c.Payload())
	case TagList:
		return "(list)"
	default:
		return c.Tag().String()
	}
}

// Halted reports whether the interpreter loop has run off the end of the
// code segment or executed Abort.
func (vm *VM) Halted() bool { return vm.halted }

// TraceLog returns the opcodes executed so far, in order, when Trace is
// enabled.
func (vm *VM) TraceLog() []string { return vm.traceLog }

// Run executes instructions until the VM halts or hits MaxSteps. Each call
// starts with a clean error register: an unhandled abort from a prior Run
// call must not immediately re-trigger the unwind-on-error check (Step) at
// the first instruction of the next top-level submission (the driver —
// REPL or multi-file run — has already reported that abort to the user by
// the time it calls Run again).
func (vm *VM) Run() error {
	vm.halted = false
	vm.Err = NilCell
	vm.InFinally = false
	for !vm.halted {
		if vm.MaxSteps > 0 && vm.steps >= vm.MaxSteps {
			return vm.fatalf("exceeded max steps (%d)", vm.MaxSteps)
		}
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes exactly one instruction. If an error is pending (set via
// SetErr) and we are not already running a finally's cleanup region, Step
// does not dispatch the next instruction normally: it unwinds the current
// call frame instead, one frame per Step, until either the return stack is
// exhausted (the error is unhandled — Step halts and returns an
// AbortError-shaped error) or the next instruction to run is SetInFinally,
// which is let through so the enclosing definition's cleanup region can run
// (§4.10 finally).
func (vm *VM) Step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			vm.halted = true
			err = vm.fatalf("%v", r)
		}
	}()

	if vm.halted || vm.IP >= vm.Mem.CodeLen() {
		vm.halted = true
		return nil
	}
	if !vm.Err.IsSentinel(SentinelNil) && !vm.InFinally {
		if Opcode(vm.Mem.ReadCodeByte(vm.IP)) != SetInFinally {
			if vm.RSP <= vm.Mem.returnStackBase {
				vm.halted = true
				return &AbortError{VM: vm, Err: vm.Err}
			}
			vm.steps++
			vm.IP = vm.ExitFrame()
			return nil
		}
	}

	b := vm.Mem.ReadCodeByte(vm.IP)
	vm.steps++

	if b >= OpcodeUserMin {
		b2 := vm.Mem.ReadCodeByte(vm.IP + 1)
		addr := (int(b&0x7F) << 8) | int(b2)
		vm.IP += 2
		if vm.Trace {
			vm.traceLog = append(vm.traceLog, fmt.Sprintf("call-user %d", addr))
		}
		vm.EnterFrame(vm.IP)
		vm.IP = addr
		return nil
	}

	op := Opcode(b)
	vm.IP++
	if vm.Trace {
		vm.traceLog = append(vm.traceLog, op.String())
	}
	return vm.execute(op)
}

func isFalsy(c Cell) bool {
	if c.IsNumber() {
		return c.Number() == 0
	}
	return c.IsSentinel(SentinelNil)
}

// eval dispatches a CODE-tagged value popped off the stack: a payload below
// OpcodeUserMin is a builtin opcode to run inline; at or above it, it is a
// user bytecode address to call. Any other tag reaching Eval is a compile-
// time protocol violation (a closer SENTINEL that should have been consumed
// by `;` and never emitted into runtime code).
func (vm *VM) eval() error {
	v := vm.Pop()
	if v.IsNumber() {
		return fmt.Errorf("eval: number is not callable")
	}
	switch v.Tag() {
	case TagCode:
		payload := int(v.Payload())
		if payload < OpcodeUserMin {
			return vm.execute(Opcode(payload))
		}
		vm.EnterFrame(vm.IP)
		vm.IP = payload
		return nil
	case TagSentinel:
		return fmt.Errorf("eval: unresolved compile-time closer %s reached at runtime", Sentinel(v.Payload()))
	default:
		return fmt.Errorf("eval: %s value is not callable", v.Tag())
	}
}

//nolint:gocyclo
func (vm *VM) execute(op Opcode) error {
	switch op {
	case Nop:
		return nil

	case LiteralNumber:
		bits := vm.Mem.ReadCodeUint32(vm.IP)
		vm.IP += 4
		vm.Push(Cell(bits))
		return nil
	case LiteralString:
		off := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		vm.Push(EncodeTagged(TagString, off, false))
		return nil
	case LiteralCode:
		addr := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		vm.Push(EncodeTagged(TagCode, addr, false))
		return nil
	case LiteralRef:
		addr := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		vm.Push(AsRef(int(addr)))
		return nil

	case VarRef:
		slot := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		vm.Push(vm.LocalRef(int(slot)))
		return nil
	case Reserve:
		n := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		return vm.ReserveLocals(int(n))

	case Fetch:
		return vm.Fetch()
	case Load:
		return vm.Load()
	case Store:
		return vm.Store()
	case StoreLocal:
		slot := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		return vm.StoreLocal(int(slot))
	case StoreGlobal:
		addr := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		return vm.StoreGlobal(int(addr))

	case Call:
		addr := vm.Mem.ReadCodeUint16(vm.IP)
		vm.IP += 2
		vm.EnterFrame(vm.IP)
		vm.IP = int(addr)
		return nil
	case Exit:
		vm.IP = vm.ExitFrame()
		vm.InFinally = false
		return nil

	case Branch:
		off := vm.Mem.ReadCodeInt16(vm.IP)
		vm.IP += 2
		vm.IP += int(off)
		return nil
	case IfFalseBranch:
		off := vm.Mem.ReadCodeInt16(vm.IP)
		vm.IP += 2
		cond := vm.Pop()
		if isFalsy(cond) {
			vm.IP += int(off)
		}
		return nil

	case SetErr:
		vm.Err = vm.Pop()
		return nil
	case GetErr:
		vm.Push(vm.Err)
		return nil
	case SetInFinally:
		vm.InFinally = true
		return nil
	case GetInFinally:
		vm.Push(EncodeNumber(boolNum(vm.InFinally)))
		return nil
	case Abort:
		vm.halted = true
		return &AbortError{VM: vm, Err: vm.Err}

	case Eval:
		return vm.eval()

	case OpenList:
		vm.OpenList()
		return nil
	case CloseList:
		return vm.CloseList()

	case Dup:
		vm.Dup()
		return nil
	case Drop:
		vm.Drop()
		return nil
	case Swap:
		vm.Swap()
		return nil
	case Over:
		vm.Over()
		return nil
	case Nip:
		vm.Nip()
		return nil
	case Tuck:
		vm.Tuck()
		return nil
	case Rot:
		vm.Rot()
		return nil
	case NRot:
		vm.NRot()
		return nil
	case Pick:
		return vm.Pick()

	case Add:
		return vm.Add()
	case Sub:
		return vm.Sub()
	case Mul:
		return vm.Mul()
	case Div:
		return vm.Div()
	case Mod:
		return vm.Mod()
	case Pow:
		return vm.Pow()
	case Eq:
		return vm.Eq()
	case Neq:
		return vm.Neq()
	case Lt:
		return vm.Lt()
	case Le:
		return vm.Le()
	case Gt:
		return vm.Gt()
	case Ge:
		return vm.Ge()
	case LogAnd:
		return vm.LogAnd()
	case LogOr:
		return vm.LogOr()
	case Negate:
		return vm.Negate()
	case Abs:
		return vm.Abs()
	case Floor:
		return vm.Floor()
	case Ceil:
		return vm.Ceil()
	case Round:
		return vm.Round()
	case Not:
		return vm.Not()

	case Pack:
		return vm.Pack()
	case Unpack:
		return vm.Unpack()
	case Slots:
		return vm.Slots()
	case Length:
		return vm.Length()
	case Slot:
		return vm.Slot()
	case Elem:
		return vm.Elem()
	case Find:
		return vm.Find(vm.Digest.Intern("default"))
	case Keys:
		return vm.Keys()
	case Values:
		return vm.Values()
	case Cons:
		return vm.Cons()
	case Concat:
		return vm.Concat()
	case Head:
		return vm.Head()
	case Tail:
		return vm.Tail()
	case Uncons:
		return vm.Uncons()
	case Append:
		return vm.Append()
	case Reverse:
		return vm.Reverse()

	case GMark:
		vm.GMark()
		return nil
	case GSweep:
		return vm.GSweep()
	case GPush:
		return vm.GPush()
	case GPeek:
		return vm.GPeek()
	case GPop:
		return vm.GPop()

	case Buffer:
		return vm.Buffer()
	case BufWrite:
		return vm.BufWrite()
	case BufRead:
		return vm.BufRead()
	case BufUnwrite:
		return vm.BufUnwrite()
	case BufIsEmpty:
		return vm.BufIsEmpty()
	case BufIsFull:
		return vm.BufIsFull()
	case BufSize:
		return vm.BufSize()

	case Print:
		return vm.Print()
	case PrintStack:
		return vm.PrintStack()

	default:
		return fmt.Errorf("unknown opcode %d", op)
	}
}
