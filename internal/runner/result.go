package runner

import "time"

// Request describes a single invocation.
type Request struct {
	Argv    []string      // argv[0] is resolved via PATH
	Dir     string        // working directory; relative paths resolve against the workspace
	Stdin   string        // fed to the process when non-empty
	Elevate bool          // prefix argv with the elevation command
	Timeout time.Duration // zero selects the runner default
}

// Result holds the outcome of a command execution. ExitCode is nil when the
// process could not be started, was killed by the timeout or was cancelled
// by the caller; Error is set only in those cases.
type Result struct {
	RunID     string        `json:"run_id"`              // unique identifier for this run
	Argv      []string      `json:"argv"`                // argv as executed, including any elevation prefix
	Success   bool          `json:"success"`             // true iff ExitCode is 0
	ExitCode  *int          `json:"returncode"`          // process exit code
	Stdout    string        `json:"stdout"`              // captured stdout (may be truncated)
	Stderr    string        `json:"stderr"`              // captured stderr (may be truncated)
	Error     string        `json:"error,omitempty"`     // timeout, cancellation or launch failure
	TimedOut  bool          `json:"timed_out,omitempty"` // true if the timeout fired
	Truncated bool          `json:"truncated,omitempty"` // true if output exceeded the size cap
	Duration  time.Duration `json:"duration"`
}

// Launched reports whether the process started and ran to completion.
func (r *Result) Launched() bool {
	return r.ExitCode != nil
}

// Failure returns the most useful description of a failed invocation:
// the infrastructure error if any, otherwise stderr.
func (r *Result) Failure() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Stderr
}
