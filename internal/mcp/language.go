package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nixkil/nixkil/internal/nix"
)

func registerLanguageTools(s *mcp.Server, h *handler) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_eval",
		Description: "Evaluate a Nix expression. The result is decoded JSON by default, or a plain string with raw.",
	}, h.evalHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_fmt",
		Description: "Format Nix files with the flake's formatter (nix fmt), or only check formatting.",
	}, h.fmtHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "nix_lint",
		Description: `Lint Nix files with statix.

If statix is not installed only a syntax check is done with nix-instantiate; the tool field names the linter used.`,
	}, h.lintHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_repl_eval",
		Description: "Evaluate one expression in nix repl, optionally with a flake loaded, and return what the repl printed.",
	}, h.replHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_parse",
		Description: "Parse a Nix file and report syntax errors.",
	}, h.parseHandler)
}

type evalParams struct {
	Expression string `json:"expression" jsonschema:"Nix expression to evaluate"`
	Raw        bool   `json:"raw,omitempty" jsonschema:"print strings without quotes; overrides json"`
	JSON       *bool  `json:"json,omitempty" jsonschema:"decode the result as JSON. Default: true"`
}

func (h *handler) evalHandler(ctx context.Context, req *mcp.CallToolRequest, params evalParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Eval(ctx, nix.EvalOptions{
		Expression: params.Expression,
		Raw:        params.Raw,
		JSON:       params.JSON,
	}))
}

type fmtParams struct {
	Path      string `json:"path,omitempty" jsonschema:"file or directory. Default: ."`
	CheckOnly bool   `json:"check_only,omitempty" jsonschema:"only check formatting, do not modify files"`
}

func (h *handler) fmtHandler(ctx context.Context, req *mcp.CallToolRequest, params fmtParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Fmt(ctx, nix.FmtOptions{
		Path:      params.Path,
		CheckOnly: params.CheckOnly,
	}))
}

type lintParams struct {
	Path string `json:"path,omitempty" jsonschema:"file or directory. Default: ."`
}

func (h *handler) lintHandler(ctx context.Context, req *mcp.CallToolRequest, params lintParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Lint(ctx, params.Path))
}

type replParams struct {
	Expression string `json:"expression" jsonschema:"expression to evaluate"`
	Flake      string `json:"flake,omitempty" jsonschema:"flake to load into the repl, e.g. nixpkgs"`
}

func (h *handler) replHandler(ctx context.Context, req *mcp.CallToolRequest, params replParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.ReplEval(ctx, nix.ReplOptions{
		Expression: params.Expression,
		Flake:      params.Flake,
	}))
}

type parseParams struct {
	Path string `json:"path" jsonschema:"Nix file to parse"`
}

func (h *handler) parseHandler(ctx context.Context, req *mcp.CallToolRequest, params parseParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Parse(ctx, params.Path))
}
