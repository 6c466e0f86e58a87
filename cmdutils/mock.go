package cmdutils

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// Call records a single invocation made through a FakeRunner.
type Call struct {
	Program string
	Args    []string
	Shell   bool
}

// String renders the call the way it would appear on a command line.
func (c Call) String() string {
	if c.Shell {
		return c.Program
	}
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// FakeRunner is a Runner for tests. It records every invocation and
// dispatches to the configured hooks; unconfigured hooks succeed with no
// output, so a zero FakeRunner behaves like a toolchain that always works.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call

	// RunFn, OutputFn and ShellFn handle the corresponding Runner calls
	// when non-nil.
	RunFn    func(program string, args ...string) error
	OutputFn func(program string, args ...string) ([]byte, error)
	ShellFn  func(cmdline string) error
}

// Run records the call and dispatches to RunFn.
func (r *FakeRunner) Run(_ context.Context, program string, args ...string) error {
	r.record(Call{Program: program, Args: args})
	if r.RunFn == nil {
		return nil
	}
	return r.RunFn(program, args...)
}

// Output records the call and dispatches to OutputFn. Like ExecRunner,
// it trims surrounding whitespace so hooks can return raw tool output.
func (r *FakeRunner) Output(_ context.Context, program string, args ...string) ([]byte, error) {
	r.record(Call{Program: program, Args: args})
	if r.OutputFn == nil {
		return nil, nil
	}
	out, err := r.OutputFn(program, args...)
	return bytes.TrimSpace(out), err
}

// Shell records the call and dispatches to ShellFn.
func (r *FakeRunner) Shell(_ context.Context, cmdline string) error {
	r.record(Call{Program: cmdline, Shell: true})
	if r.ShellFn == nil {
		return nil
	}
	return r.ShellFn(cmdline)
}

func (r *FakeRunner) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns a copy of all recorded invocations in order.
func (r *FakeRunner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor returns the recorded invocations of one program.
func (r *FakeRunner) CallsFor(program string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if !c.Shell && c.Program == program {
			out = append(out, c)
		}
	}
	return out
}
