package machine

import (
	"fmt"
	"strconv"
	"strings"
)

// This file implements the debug print/format builtins. Formatting is
// purely diagnostic: it never touches the stack beyond what Print/
// PrintStack themselves consume.

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatCellAt renders the value whose topmost cell sits at addr (a LIST
// header, or any simple cell).
func (vm *VM) formatCellAt(addr int) string {
	c := vm.Mem.ReadCell(addr)
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
		return strconv.Quote(vm.Digest.Text(c.Payload()))
	case TagCode:
		return fmt.Sprintf("<code %d>", c.Payload())
	case TagLocal:
		return fmt.Sprintf("<local %d>", c.Payload())
	case TagDataRef:
		return fmt.Sprintf("<ref %d>", c.RefIndex())
	case TagList:
		s := int(c.Payload())
		addrs := vm.elemAddrsBaseFirst(addr, s)
		parts := make([]string, len(addrs))
		for i, a := range addrs {
			parts[i] = vm.formatCellAt(a)
		}
		return "( " + strings.Join(parts, " ") + " )"
	default:
		return "?"
	}
}

// Print: (value -- ). Pops the top span and writes its formatted value.
func (vm *VM) Print() error {
	vm.requireDepth(1)
	span := vm.spanEndingAt(vm.SP - 1)
	vm.requireDepth(span)
	s := vm.formatCellAt(vm.SP - 1)
	vm.SP -= span
	fmt.Fprintln(vm.Out, s)
	return nil
}

// PrintStack: ( -- ). Writes the entire data stack, bottom to top, without
// consuming it.
func (vm *VM) PrintStack() error {
	var frames []string
	idx := vm.SP - 1
	for idx >= vm.Mem.dataStackBase {
		frames = append(frames, vm.formatCellAt(idx))
		idx -= vm.spanEndingAt(idx)
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	fmt.Fprintln(vm.Out, "["+strings.Join(frames, " ")+"]")
	return nil
}
