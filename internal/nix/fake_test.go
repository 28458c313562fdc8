package nix

import (
	"context"
	"fmt"
	"testing"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// fakeRunner is a test double for CommandRunner. It returns results in
// order and records every request it receives. Once the queue is empty it
// returns a successful run with no output.
type fakeRunner struct {
	results []*runner.Result
	reqs    []runner.Request
	// onRun, if set, is called before a result is returned.
	onRun func(req runner.Request)
}

func (f *fakeRunner) Run(_ context.Context, req runner.Request) *runner.Result {
	f.reqs = append(f.reqs, req)
	if f.onRun != nil {
		f.onRun(req)
	}
	if len(f.results) == 0 {
		return exited(0, "", "")
	}
	res := f.results[0]
	f.results = f.results[1:]
	res.Argv = req.Argv
	return res
}

var runSeq int

// exited builds the result of a process that ran to completion.
func exited(code int, stdout, stderr string) *runner.Result {
	runSeq++
	return &runner.Result{
		RunID:    fmt.Sprintf("run-%d", runSeq),
		Success:  code == 0,
		ExitCode: &code,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// notFound builds the result of a binary that could not be started.
func notFound(name string) *runner.Result {
	return &runner.Result{
		RunID: "run-missing",
		Error: fmt.Sprintf("executing %s: exec: %q: executable file not found in $PATH", name, name),
	}
}

// timedOut builds the result of a process killed by its timeout.
func timedOut() *runner.Result {
	return &runner.Result{
		RunID:    "run-timeout",
		Error:    "command timed out after 1m0s",
		TimedOut: true,
	}
}

func newEngine(t *testing.T, results ...*runner.Result) (*Engine, *fakeRunner) {
	t.Helper()
	f := &fakeRunner{results: results}
	e := &Engine{
		Config:    &config.Config{System: "x86_64-linux"},
		Runner:    f,
		Workspace: t.TempDir(),
	}
	return e, f
}

// onlyRequest fails the test unless exactly one request was made.
func onlyRequest(t *testing.T, f *fakeRunner) runner.Request {
	t.Helper()
	if len(f.reqs) != 1 {
		t.Fatalf("got %d requests, want 1: %v", len(f.reqs), f.reqs)
	}
	return f.reqs[0]
}

func intPtr(n int) *int { return &n }
