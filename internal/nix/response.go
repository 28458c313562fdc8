package nix

import "github.com/nixkil/nixkil/internal/runner"

// Outcome tags which branch produced a response. The set of populated
// fields in each response depends on it.
type Outcome string

const (
	// OK is a successful invocation with a decoded payload.
	OK Outcome = "ok"
	// Raw is a successful invocation whose output could not be decoded;
	// the text is returned as-is.
	Raw Outcome = "raw"
	// Fallback is a successful response synthesised from a tool that was
	// unavailable or failed, carrying guidance instead of data.
	Fallback Outcome = "fallback"
	// Failed is an infrastructure or tool-reported failure.
	Failed Outcome = "failed"
	// Invalid is input rejected before any process was started.
	Invalid Outcome = "invalid"
)

// Status is embedded in every response.
type Status struct {
	Success bool    `json:"success"`
	Outcome Outcome `json:"outcome"`
	RunID   string  `json:"run_id,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Invocation is the raw process output, passed through when an operation
// has nothing better to report.
type Invocation struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode *int   `json:"returncode,omitempty"`
}

func invocation(res *runner.Result) *Invocation {
	return &Invocation{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
}

func statusOK(res *runner.Result) Status {
	return Status{Success: true, Outcome: OK, RunID: res.RunID}
}

func statusRaw(res *runner.Result) Status {
	return Status{Success: true, Outcome: Raw, RunID: res.RunID}
}

func statusFallback(res *runner.Result) Status {
	return Status{Success: true, Outcome: Fallback, RunID: res.RunID}
}

// statusFailed reports a failed invocation. An infrastructure error always
// wins over msg so that timeouts and launch failures surface verbatim.
func statusFailed(res *runner.Result, msg string) Status {
	if res.Error != "" {
		msg = res.Error
	}
	return Status{Success: false, Outcome: Failed, RunID: res.RunID, Error: msg}
}

func statusInvalid(msg string) Status {
	return Status{Success: false, Outcome: Invalid, Error: msg}
}

// Response is implemented by every response type.
type Response interface {
	Report() Status
}

// Report returns the embedded status.
func (s Status) Report() Status { return s }
