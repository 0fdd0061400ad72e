package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/tacitlang/tacit/lang/compiler"
	"github.com/tacitlang/tacit/lang/machine"
)

func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunFiles(stdio, c.Trace, c.MaxSteps, args...)
}

// RunFiles compiles each file in order into one shared VM (so a later file
// may call words a prior one defined) and runs the result, then prints the
// final data stack the same way PrintStack would.
func RunFiles(stdio mainer.Stdio, trace bool, maxSteps int, files ...string) error {
	vm := machine.NewVM()
	vm.Out = stdio.Stdout
	vm.Trace = trace
	vm.MaxSteps = maxSteps

	comp, err := compiler.New(vm)
	if err != nil {
		return printError(stdio, err)
	}

	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return printError(stdio, err)
		}
		if err := comp.Compile(src); err != nil {
			return printError(stdio, fmt.Errorf("%s: %w", path, err))
		}
		if err := vm.Run(); err != nil {
			var abort *machine.AbortError
			if errors.As(err, &abort) && abort.Err.IsSentinel(machine.SentinelNil) {
				continue // clean end-of-submission halt, not a real error
			}
			reportTrace(stdio, vm, trace)
			return printError(stdio, err)
		}
	}

	reportTrace(stdio, vm, trace)
	if err := vm.PrintStack(); err != nil {
		return printError(stdio, err)
	}
	return nil
}

func reportTrace(stdio mainer.Stdio, vm *machine.VM, trace bool) {
	if !trace {
		return
	}
	fmt.Fprintln(stdio.Stderr, strings.Join(vm.TraceLog(), "\n"))
}
