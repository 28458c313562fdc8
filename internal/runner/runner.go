// Package runner provides bounded command execution: every invocation has
// a timeout, output size limits and a uniform Result.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nixkil/nixkil/internal/metrics"
)

const (
	// DefaultTimeout applies when neither the request nor the runner sets one.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxOutput caps each captured stream when MaxOutput is unset.
	DefaultMaxOutput = 4 << 20

	// waitDelay bounds how long Run waits for output pipes after the
	// process is killed; grandchildren may keep them open.
	waitDelay = 2 * time.Second
)

// Runner executes commands relative to a workspace.
type Runner struct {
	Workspace string
	Timeout   time.Duration
	MaxOutput int      // bytes per stream
	Elevate   []string // argv prefix for elevated requests, default sudo
	Logger    *slog.Logger
}

// Run executes req and always returns a Result. Infrastructure failures
// (empty argv, launch failure, timeout, cancellation) are reported through Result.Error
// with a nil ExitCode; a process that ran reports its exit code.
func (r *Runner) Run(ctx context.Context, req Request) *Result {
	res := &Result{RunID: uuid.New().String()}
	log := r.logger().With("run_id", res.RunID)

	if len(req.Argv) == 0 {
		res.Error = "empty argv"
		return res
	}

	argv := req.Argv
	if req.Elevate {
		argv = append(slices.Clone(r.elevatePrefix()), argv...)
	}
	res.Argv = argv

	dir := r.resolveDir(req.Dir)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	maxOutput := r.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: maxOutput}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: maxOutput}

	log.Debug("running command", "argv", argv, "dir", dir, "timeout", timeout)

	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Len() >= maxOutput || stderr.Len() >= maxOutput

	outcome := "ok"
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		code := 0
		res.ExitCode = &code
		res.Success = true
	case parent.Err() != nil:
		res.Error = fmt.Sprintf("command cancelled: %v", parent.Err())
		outcome = "cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Error = fmt.Sprintf("command timed out after %s", timeout)
		outcome = "timeout"
	case errors.As(runErr, &exitErr):
		code := exitErr.ExitCode()
		res.ExitCode = &code
		outcome = "failed"
	default:
		// Binary not found, bad working directory, permission denied.
		res.Error = fmt.Sprintf("executing %s: %v", argv[0], runErr)
		outcome = "launch_error"
	}

	tool := filepath.Base(req.Argv[0])
	metrics.Invocations.WithLabelValues(tool, outcome).Inc()
	metrics.InvocationDuration.WithLabelValues(tool).Observe(res.Duration.Seconds())
	if res.Truncated {
		metrics.TruncatedOutputs.WithLabelValues(tool).Inc()
	}

	switch outcome {
	case "ok":
		log.Debug("command finished", "tool", tool, "duration", res.Duration)
	case "failed":
		log.Debug("command failed", "tool", tool, "exit_code", *res.ExitCode, "duration", res.Duration)
	default:
		log.Warn("command did not complete", "tool", tool, "error", res.Error)
	}

	return res
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) elevatePrefix() []string {
	if len(r.Elevate) > 0 {
		return r.Elevate
	}
	return []string{"sudo"}
}

// resolveDir resolves dir relative to the workspace. An empty dir selects
// the workspace itself.
func (r *Runner) resolveDir(dir string) string {
	if dir == "" {
		return r.Workspace
	}
	if filepath.IsAbs(dir) || r.Workspace == "" {
		return filepath.Clean(dir)
	}
	return filepath.Clean(filepath.Join(r.Workspace, dir))
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
