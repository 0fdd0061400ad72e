package machine

import (
	"math"
)

// This file implements §4.11: arithmetic, comparison, and logic opcodes,
// all of which broadcast elementwise over LIST operands (recursively, so a
// list of lists broadcasts at every depth) the way NUMBER and LIST operands
// mix freely elsewhere in the language. A binary op with two list operands
// of unequal logical lengths cycles the shorter one modulo its length;
// mixing a scalar with a list broadcasts the scalar across every element.

// broadcastValue is an in-Go-memory tree mirroring one operand's shape: a
// single float64 leaf, or an ordered (base-first) list of sub-values. Using
// a Go-side tree rather than working in VM memory directly lets combine()
// compute the whole result before any cells are written back.
type broadcastValue struct {
	isList bool
	num    float64
	elems  []broadcastValue
}

// readOperand materializes the span [start, start+span) into a
// broadcastValue tree.
func (vm *VM) readOperand(start, span int) broadcastValue {
	topIdx := start + span - 1
	c := vm.Mem.ReadCell(topIdx)
	if !c.IsList() {
		return broadcastValue{num: c.Number()}
	}
	s := int(c.Payload())
	addrs := vm.elemAddrsBaseFirst(topIdx, s)
	elems := make([]broadcastValue, len(addrs))
	for i, a := range addrs {
		elemSpan := vm.spanEndingAt(a)
		elems[i] = vm.readOperand(a-elemSpan+1, elemSpan)
	}
	return broadcastValue{isList: true, elems: elems}
}

// pushBroadcast writes v back onto the data stack, base-first.
func (vm *VM) pushBroadcast(v broadcastValue) {
	if !v.isList {
		vm.Push(EncodeNumber(v.num))
		return
	}
	mark := vm.SP
	for _, e := range v.elems {
		vm.pushBroadcast(e)
	}
	s := vm.SP - mark
	vm.Push(EncodeTagged(TagList, uint16(s), false))
}

type numericOp func(a, b float64) float64

func combineBroadcast(a, b broadcastValue, op numericOp) (broadcastValue, error) {
	switch {
	case !a.isList && !b.isList:
		return broadcastValue{num: op(a.num, b.num)}, nil
	case a.isList && !b.isList:
		elems := make([]broadcastValue, len(a.elems))
		for i, e := range a.elems {
			r, err := combineBroadcast(e, b, op)
			if err != nil {
				return broadcastValue{}, err
			}
			elems[i] = r
		}
		return broadcastValue{isList: true, elems: elems}, nil
	case !a.isList && b.isList:
		elems := make([]broadcastValue, len(b.elems))
		for i, e := range b.elems {
			r, err := combineBroadcast(a, e, op)
			if err != nil {
				return broadcastValue{}, err
			}
			elems[i] = r
		}
		return broadcastValue{isList: true, elems: elems}, nil
	default:
		// list x list of unequal lengths cycles the shorter side modulo its
		// length, producing max(m, n) elements (§4.11/§8).
		n := len(a.elems)
		if len(b.elems) > n {
			n = len(b.elems)
		}
		if n == 0 {
			return broadcastValue{isList: true}, nil
		}
		elems := make([]broadcastValue, n)
		for i := 0; i < n; i++ {
			r, err := combineBroadcast(a.elems[i%len(a.elems)], b.elems[i%len(b.elems)], op)
			if err != nil {
				return broadcastValue{}, err
			}
			elems[i] = r
		}
		return broadcastValue{isList: true, elems: elems}, nil
	}
}

func mapUnary(v broadcastValue, op func(float64) float64) broadcastValue {
	if !v.isList {
		return broadcastValue{num: op(v.num)}
	}
	elems := make([]broadcastValue, len(v.elems))
	for i, e := range v.elems {
		elems[i] = mapUnary(e, op)
	}
	return broadcastValue{isList: true, elems: elems}
}

// binaryNumeric pops the top two spans (B above A) and pushes the result of
// broadcasting op over them.
func (vm *VM) binaryNumeric(op numericOp) error {
	vm.requireDepth(1)
	spanB := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(spanB + 1)
	spanA := vm.spanEndingAt(vm.SP - 1 - spanB)
	vm.requireDepth(spanA + spanB)
	aStart := vm.SP - spanA - spanB
	bStart := aStart + spanA

	aVal := vm.readOperand(aStart, spanA)
	bVal := vm.readOperand(bStart, spanB)
	result, err := combineBroadcast(aVal, bVal, op)
	if err != nil {
		return err
	}
	vm.SP = aStart
	vm.pushBroadcast(result)
	return nil
}

// unaryNumeric pops the top span and pushes the result of mapping op over
// it.
func (vm *VM) unaryNumeric(op func(float64) float64) error {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	start := vm.SP - span
	v := vm.readOperand(start, span)
	result := mapUnary(v, op)
	vm.SP = start
	vm.pushBroadcast(result)
	return nil
}

func truthy(x float64) bool { return x != 0 }

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (vm *VM) Add() error { return vm.binaryNumeric(func(a, b float64) float64 { return a + b }) }
func (vm *VM) Sub() error { return vm.binaryNumeric(func(a, b float64) float64 { return a - b }) }
func (vm *VM) Mul() error { return vm.binaryNumeric(func(a, b float64) float64 { return a * b }) }
func (vm *VM) Div() error { return vm.binaryNumeric(func(a, b float64) float64 { return a / b }) }
func (vm *VM) Mod() error { return vm.binaryNumeric(math.Mod) }
func (vm *VM) Pow() error { return vm.binaryNumeric(math.Pow) }

func (vm *VM) Eq() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(a == b) })
}
func (vm *VM) Neq() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(a != b) })
}
func (vm *VM) Lt() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(a < b) })
}
func (vm *VM) Le() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(a <= b) })
}
func (vm *VM) Gt() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(a > b) })
}
func (vm *VM) Ge() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(a >= b) })
}
func (vm *VM) LogAnd() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(truthy(a) && truthy(b)) })
}
func (vm *VM) LogOr() error {
	return vm.binaryNumeric(func(a, b float64) float64 { return boolNum(truthy(a) || truthy(b)) })
}

func (vm *VM) Negate() error { return vm.unaryNumeric(func(a float64) float64 { return -a }) }
func (vm *VM) Abs() error    { return vm.unaryNumeric(math.Abs) }
func (vm *VM) Floor() error  { return vm.unaryNumeric(math.Floor) }
func (vm *VM) Ceil() error   { return vm.unaryNumeric(math.Ceil) }
func (vm *VM) Round() error  { return vm.unaryNumeric(math.Round) }
func (vm *VM) Not() error {
	return vm.unaryNumeric(func(a float64) float64 { return boolNum(!truthy(a)) })
}
