package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nixkil/nixkil/internal/runner"
)

// recentLister is implemented by stores that keep recent runs in memory.
type recentLister interface {
	Recent(n int) []*runner.Result
}

const defaultRecentRuns = 10

func registerInspectTools(s *mcp.Server, h *handler) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "nix_inspect",
		Description: `Return the full recorded output of a previous invocation.

Every tool result carries a run_id. Use this when a response was truncated, or to see the exact command that ran.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_recent_runs",
		Description: "List the most recent invocations with their run_id, exit status and command, newest first.",
	}, h.recentRunsHandler)
}

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run_id from a previous tool result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout, stderr or all. Default: all"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if h.store == nil {
		return errorResult("run recording is disabled")
	}

	stream := params.Stream
	switch stream {
	case "":
		stream = "all"
	case "all", "stdout", "stderr":
	default:
		return errorResult(fmt.Sprintf("unknown stream %q: want stdout, stderr or all", params.Stream))
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	return textResult(formatInspectOutput(result, stream))
}

func formatInspectOutput(res *runner.Result, stream string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", res.RunID)
	fmt.Fprintf(&b, "Command: %s\n", shellquote.Join(res.Argv...))
	fmt.Fprintf(&b, "Status: %s\n", runStatus(res))
	fmt.Fprintf(&b, "Duration: %s\n", res.Duration.Round(time.Millisecond))
	if res.Truncated {
		fmt.Fprintln(&b, "Note: output exceeded the capture limit and was cut")
	}

	if stream == "all" || stream == "stdout" {
		writeStream(&b, "stdout", res.Stdout)
	}
	if stream == "all" || stream == "stderr" {
		writeStream(&b, "stderr", res.Stderr)
	}
	return b.String()
}

func writeStream(b *strings.Builder, name, text string) {
	fmt.Fprintln(b)
	if text == "" {
		fmt.Fprintf(b, "%s: (empty)\n", name)
		return
	}
	fmt.Fprintf(b, "%s:\n", name)
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
}

// runStatus is a one-word summary of a recorded run.
func runStatus(res *runner.Result) string {
	switch {
	case res.Success:
		return "ok"
	case res.ExitCode != nil:
		return fmt.Sprintf("exit %d", *res.ExitCode)
	case res.Error != "":
		return "error: " + res.Error
	default:
		return "failed"
	}
}

type recentRunsParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of runs listed. Default: 10"`
}

func (h *handler) recentRunsHandler(ctx context.Context, req *mcp.CallToolRequest, params recentRunsParams) (*mcp.CallToolResult, any, error) {
	lister, ok := h.store.(recentLister)
	if !ok {
		return errorResult("this server does not keep recent runs")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRecentRuns
	}

	runs := lister.Recent(limit)
	if len(runs) == 0 {
		return textResult("No runs recorded yet.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent runs (%d):\n", len(runs))
	for _, res := range runs {
		fmt.Fprintf(&b, "  %s  %-10s %s\n", res.RunID, runStatus(res), shellquote.Join(res.Argv...))
	}
	return textResult(b.String())
}
