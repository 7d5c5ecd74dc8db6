package testharness

import (
	"context"
	"strings"
	"sync"

	"remote-sync/internal/execx"
)

// Handler produces the result for a matched command.
type Handler func(cmd execx.Command) execx.Result

type fakeRule struct {
	prefix  string
	handler Handler
}

// FakeExecutor is a scripted execx.Executor. Commands are matched against
// their rendered form (execx.Command.String) by prefix; the most recently
// registered matching rule wins. Unmatched commands succeed with no output.
// All calls are recorded. Safe for concurrent use.
type FakeExecutor struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []execx.Command
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

func (f *FakeExecutor) On(prefix string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{prefix: prefix, handler: h})
}

// OnSequence answers successive matching calls with results in order; the
// last result repeats once the sequence is exhausted.
func (f *FakeExecutor) OnSequence(prefix string, results ...execx.Result) {
	var mu sync.Mutex
	n := 0
	f.On(prefix, func(execx.Command) execx.Result {
		mu.Lock()
		defer mu.Unlock()
		i := n
		if i >= len(results) {
			i = len(results) - 1
		}
		n++
		return results[i]
	})
}

func (f *FakeExecutor) Respond(prefix string, res execx.Result) {
	f.On(prefix, func(execx.Command) execx.Result { return res })
}

func (f *FakeExecutor) Run(_ context.Context, cmd execx.Command) execx.Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var handler Handler
	rendered := cmd.String()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(rendered, f.rules[i].prefix) {
			handler = f.rules[i].handler
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return OK("")
	}
	return handler(cmd)
}

func (f *FakeExecutor) Calls() []execx.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execx.Command(nil), f.calls...)
}

// Count returns how many recorded calls start with prefix.
func (f *FakeExecutor) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

// Rendered lists recorded calls in their string form.
func (f *FakeExecutor) Rendered() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func OK(stdout string) execx.Result {
	return execx.Result{Stdout: stdout, Outcome: execx.OutcomeOK}
}

func Fail(code int, stderr string) execx.Result {
	return execx.Result{ExitCode: code, Stderr: stderr, Outcome: execx.OutcomeFailed}
}
