package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nixkil/nixkil/internal/metrics"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{
		Workspace: t.TempDir(),
		Timeout:   10 * time.Second,
		MaxOutput: 1 << 20,
	}
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{Argv: []string{"echo", "hello"}})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("Stdout = %q, want to contain 'hello'", res.Stdout)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty", res.Error)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{Argv: []string{"sh", "-c", "echo oops >&2; exit 3"}})
	if res.Success {
		t.Error("Success = true, want false")
	}
	if res.ExitCode == nil || *res.ExitCode != 3 {
		t.Errorf("ExitCode = %v, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("Stderr = %q, want to contain 'oops'", res.Stderr)
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty for tool-reported failure", res.Error)
	}
	if res.Failure() != res.Stderr {
		t.Errorf("Failure() = %q, want stderr", res.Failure())
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{Argv: []string{"nonexistent-binary-xyz-123"}})
	if res.Success {
		t.Fatal("Success = true for missing binary")
	}
	if res.ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil", *res.ExitCode)
	}
	if !strings.Contains(res.Error, "nonexistent-binary-xyz-123") {
		t.Errorf("Error = %q, want to mention the binary name", res.Error)
	}
	if res.Launched() {
		t.Error("Launched() = true, want false")
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{})
	if res.Success {
		t.Fatal("Success = true for empty argv")
	}
	if res.Error != "empty argv" {
		t.Errorf("Error = %q, want 'empty argv'", res.Error)
	}
}

func TestRun_RelativeDir(t *testing.T) {
	r := newTestRunner(t)
	sub := filepath.Join(r.Workspace, "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	res := r.Run(context.Background(), Request{Argv: []string{"pwd"}, Dir: "subdir"})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Failure())
	}
	if !strings.Contains(res.Stdout, "subdir") {
		t.Errorf("Stdout = %q, want to contain 'subdir'", res.Stdout)
	}
}

func TestRun_MissingDir(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{Argv: []string{"pwd"}, Dir: "does-not-exist"})
	if res.Success {
		t.Fatal("Success = true for missing working directory")
	}
	if res.ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil", *res.ExitCode)
	}
	if res.Error == "" {
		t.Error("Error is empty, want launch failure")
	}
}

func TestRun_Stdin(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{Argv: []string{"cat"}, Stdin: "1 + 1\n:q\n"})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Failure())
	}
	if res.Stdout != "1 + 1\n:q\n" {
		t.Errorf("Stdout = %q, want stdin echoed", res.Stdout)
	}
}

func TestRun_Elevate(t *testing.T) {
	r := newTestRunner(t)
	r.Elevate = []string{"env"}
	res := r.Run(context.Background(), Request{Argv: []string{"echo", "elevated"}, Elevate: true})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Failure())
	}
	if len(res.Argv) != 3 || res.Argv[0] != "env" || res.Argv[1] != "echo" {
		t.Errorf("Argv = %v, want [env echo elevated]", res.Argv)
	}
	if !strings.Contains(res.Stdout, "elevated") {
		t.Errorf("Stdout = %q", res.Stdout)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Request{Argv: []string{"sleep", "10"}, Timeout: 100 * time.Millisecond})
	if res.Success {
		t.Fatal("Success = true for timed out command")
	}
	if res.ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil on timeout", *res.ExitCode)
	}
	if !res.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("Error = %q, want to describe the timeout", res.Error)
	}
	if res.Duration > 5*time.Second {
		t.Errorf("Duration = %v, timeout not enforced", res.Duration)
	}
}

func TestRun_Cancelled(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	counter := metrics.Invocations.WithLabelValues("sleep", "cancelled")
	before := testutil.ToFloat64(counter)

	res := r.Run(ctx, Request{Argv: []string{"sleep", "5"}})
	if res.Success {
		t.Fatal("Success = true for cancelled command")
	}
	if res.ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil on cancellation", *res.ExitCode)
	}
	if res.TimedOut {
		t.Error("TimedOut = true, want false for caller cancellation")
	}
	if !strings.Contains(res.Error, "cancelled") {
		t.Errorf("Error = %q, want to describe the cancellation", res.Error)
	}
	if res.Failure() != res.Error {
		t.Errorf("Failure() = %q, want the cancellation error", res.Failure())
	}
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("invocations{tool=sleep,outcome=cancelled} = %v, want %v", got, before+1)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 100 // very small cap

	// Generate output larger than cap.
	res := r.Run(context.Background(), Request{Argv: []string{"sh", "-c", "dd if=/dev/zero bs=200 count=1 2>/dev/null"}})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Failure())
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.Stdout) > r.MaxOutput {
		t.Errorf("len(Stdout) = %d, want <= %d", len(res.Stdout), r.MaxOutput)
	}
}

func TestRun_Metrics(t *testing.T) {
	r := newTestRunner(t)
	counter := metrics.Invocations.WithLabelValues("true", "ok")
	before := testutil.ToFloat64(counter)

	r.Run(context.Background(), Request{Argv: []string{"true"}})

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("invocations{tool=true,outcome=ok} = %v, want %v", got, before+1)
	}
}
