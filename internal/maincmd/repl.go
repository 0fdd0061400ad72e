package maincmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mna/mainer"
	"golang.org/x/term"

	"github.com/tacitlang/tacit/lang/compiler"
	"github.com/tacitlang/tacit/lang/machine"
)

func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunRepl(stdio, c.Trace, c.MaxSteps)
}

// RunRepl reads one line at a time, compiling and running each as its own
// top-level submission against a single persistent VM, so definitions,
// globals, and the data stack all survive across lines the way a single
// multi-line file would behave. After each line the current data stack is
// printed, the same feedback a dup/print-stack call would give.
//
// When stdin is a terminal, line editing and history go through
// golang.org/x/term the way an interactive raw-mode reader would; otherwise
// lines are read with a plain bufio.Scanner (e.g. piped input, scripted
// sessions).
func RunRepl(stdio mainer.Stdio, trace bool, maxSteps int) error {
	vm := machine.NewVM()
	vm.Out = stdio.Stdout
	vm.Trace = trace
	vm.MaxSteps = maxSteps

	comp, err := compiler.New(vm)
	if err != nil {
		return printError(stdio, err)
	}

	lines, closeLines, err := replLineSource(stdio)
	if err != nil {
		return printError(stdio, err)
	}
	defer closeLines()

	for {
		line, err := lines()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(stdio.Stdout)
			return nil
		}
		if err != nil {
			return printError(stdio, err)
		}
		if err := replEval(stdio, vm, comp, line); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			continue
		}
		vm.PrintStack()
	}
}

func replEval(stdio mainer.Stdio, vm *machine.VM, comp *compiler.Compiler, line string) error {
	if err := comp.Compile([]byte(line)); err != nil {
		return err
	}
	err := vm.Run()
	if err == nil {
		return nil
	}
	var abort *machine.AbortError
	if errors.As(err, &abort) && abort.Err.IsSentinel(machine.SentinelNil) {
		return nil
	}
	return err
}

// replLineSource returns a function yielding successive input lines and a
// cleanup function, preferring a raw-mode term.Terminal (for history and
// in-line editing) when stdin is an interactive terminal. Terminal state
// lives on the process's real stdin (os.Stdin), not stdio.Stdin: raw mode
// only makes sense against the controlling terminal, never a Stdio built
// over an in-memory buffer for a test.
func replLineSource(stdio mainer.Stdio) (func() (string, error), func(), error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return nil, nil, fmt.Errorf("repl: enabling raw mode: %w", err)
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, stdio.Stdout}, "tacit> ")
		return func() (string, error) { return t.ReadLine() },
			func() { term.Restore(int(os.Stdin.Fd()), oldState) },
			nil
	}

	sc := bufio.NewScanner(os.Stdin)
	return func() (string, error) {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return sc.Text(), nil
		},
		func() {},
		nil
}
