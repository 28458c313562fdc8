package nix

import (
	"context"
	"fmt"
	"strings"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// EvalOptions selects how an expression is evaluated and printed.
type EvalOptions struct {
	Expression string
	Raw        bool  // print strings without quotes; wins over JSON
	JSON       *bool // decode output as JSON, default true
}

// EvalResponse is the result of Eval. Result is the decoded value, or the
// trimmed output text when it was not decoded. It is always encoded, so an
// expression evaluating to null yields "result": null.
type EvalResponse struct {
	Status
	Result any `json:"result"`
}

// Eval evaluates a Nix expression.
func (e *Engine) Eval(ctx context.Context, opts EvalOptions) *EvalResponse {
	if strings.TrimSpace(opts.Expression) == "" {
		return &EvalResponse{Status: statusInvalid("expression is required")}
	}
	wantJSON := opts.JSON == nil || *opts.JSON

	argv := []string{e.tool("nix"), "eval", "--expr", opts.Expression}
	switch {
	case opts.Raw:
		argv = append(argv, "--raw")
	case wantJSON:
		argv = append(argv, "--json")
	}

	res := e.exec(ctx, config.Language, runner.Request{Argv: argv})
	if !res.Success {
		msg := res.Stderr
		if msg == "" {
			msg = "Evaluation failed"
		}
		return &EvalResponse{Status: statusFailed(res, msg)}
	}

	out := strings.TrimSpace(res.Stdout)
	if !wantJSON || opts.Raw {
		return &EvalResponse{Status: statusOK(res), Result: out}
	}
	if v, ok := decodeJSON(out); ok {
		return &EvalResponse{Status: statusOK(res), Result: v}
	}
	return &EvalResponse{Status: statusRaw(res), Result: out}
}

// FmtOptions selects what nix fmt formats.
type FmtOptions struct {
	Path      string // file or directory, default "."
	CheckOnly bool
}

// FmtResponse is the result of Fmt.
type FmtResponse struct {
	Status
	Path    string `json:"path"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
	*Invocation
}

// Fmt runs the flake's formatter over Path.
func (e *Engine) Fmt(ctx context.Context, opts FmtOptions) *FmtResponse {
	path := pathOr(opts.Path)
	resp := &FmtResponse{Path: path}

	argv := []string{e.tool("nix"), "fmt", path}
	if opts.CheckOnly {
		argv = []string{e.tool("nix"), "fmt", "--", "--check", path}
	}

	res := e.exec(ctx, config.Language, runner.Request{Argv: argv})
	switch {
	case res.Success:
		resp.Status = statusOK(res)
		resp.Message = "Files formatted"
		if opts.CheckOnly {
			resp.Message = "Formatting check passed"
		}
	case opts.CheckOnly && res.Launched():
		resp.Status = statusFailed(res, "")
		resp.Message = "Formatting check failed - files need formatting"
		resp.Details = res.Stderr
	default:
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
	}
	return resp
}

// LintResponse is the result of Lint. Tool names the linter that produced
// the verdict.
type LintResponse struct {
	Status
	Path    string `json:"path"`
	Tool    string `json:"tool,omitempty"`
	Message string `json:"message,omitempty"`
	Issues  string `json:"issues,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Lint checks Path with statix. When statix cannot be started the file is
// only parsed with nix-instantiate.
func (e *Engine) Lint(ctx context.Context, path string) *LintResponse {
	path = pathOr(path)
	resp := &LintResponse{Path: path}

	statix := e.tool("statix")
	res := e.exec(ctx, config.Language, runner.Request{Argv: []string{statix, "check", path}})
	if res.Launched() || res.TimedOut {
		resp.Tool = "statix"
		if res.Success {
			resp.Status = statusOK(res)
			resp.Message = "No linting issues found"
			return resp
		}
		resp.Status = statusFailed(res, "")
		if res.Launched() {
			resp.Message = "Linting issues found"
			resp.Issues = res.Stdout
		}
		return resp
	}

	resp.Tool = "nix-instantiate"
	resp.Note = NewErrToolUnavailable(statix).Error()
	res = e.exec(ctx, config.Language, runner.Request{Argv: []string{e.tool("nix-instantiate"), "--parse", path}})
	if res.Success {
		resp.Status = statusOK(res)
		resp.Message = "Syntax check passed (install statix for full linting)"
		return resp
	}
	resp.Status = statusFailed(res, res.Stderr)
	resp.Message = "Syntax error found"
	return resp
}

// ReplOptions selects the expression and the flake loaded into the repl.
type ReplOptions struct {
	Expression string
	Flake      string // optional, e.g. "nixpkgs"
}

// ReplResponse is the result of ReplEval.
type ReplResponse struct {
	Status
	Flake  string `json:"flake,omitempty"`
	Result string `json:"result"`
}

// ReplEval feeds one expression to nix repl and returns what it printed,
// without the banner and prompts.
func (e *Engine) ReplEval(ctx context.Context, opts ReplOptions) *ReplResponse {
	resp := &ReplResponse{Flake: opts.Flake}
	if strings.TrimSpace(opts.Expression) == "" {
		resp.Status = statusInvalid("expression is required")
		return resp
	}

	argv := []string{e.tool("nix"), "repl"}
	if opts.Flake != "" {
		argv = append(argv, opts.Flake)
	}

	res := e.exec(ctx, config.Language, runner.Request{Argv: argv, Stdin: opts.Expression + "\n:q\n"})
	if !res.Launched() {
		resp.Status = statusFailed(res, res.Stderr)
		return resp
	}
	resp.Status = statusOK(res)
	resp.Result = replOutput(res.Stdout)
	return resp
}

// replOutput drops the banner, prompt echoes and blank lines.
func replOutput(stdout string) string {
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "nix-repl>") || strings.HasPrefix(line, "Welcome") || strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ParseResponse is the result of Parse.
type ParseResponse struct {
	Status
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Parse checks a Nix file for syntax errors.
func (e *Engine) Parse(ctx context.Context, path string) *ParseResponse {
	resp := &ParseResponse{Path: path}
	if path == "" {
		resp.Status = statusInvalid("path is required")
		resp.Message = "Parse error"
		return resp
	}

	res := e.exec(ctx, config.Language, runner.Request{Argv: []string{e.tool("nix-instantiate"), "--parse", path}})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Message = "Parse error"
		return resp
	}
	resp.Status = statusOK(res)
	resp.Message = fmt.Sprintf("File '%s' parsed successfully", path)
	return resp
}

func pathOr(p string) string {
	if p == "" {
		return "."
	}
	return p
}
