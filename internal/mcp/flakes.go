package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nixkil/nixkil/internal/nix"
)

func registerFlakeTools(s *mcp.Server, h *handler) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "flake_init",
		Description: "Initialise a flake in a directory, optionally from a template, and list the files created.",
	}, h.flakeInitHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "flake_show",
		Description: "Show the output tree (packages, devShells, nixosConfigurations, ...) of a flake.",
	}, h.flakeShowHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "flake_check",
		Description: "Evaluate a flake and run its checks.",
	}, h.flakeCheckHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "flake_update",
		Description: "Update flake.lock, either for the given inputs or for all of them.",
	}, h.flakeUpdateHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "flake_lock_info",
		Description: "Summarise the locked inputs of a flake: source type, owner, repo, revision and last modification time.",
	}, h.flakeLockInfoHandler)
}

type flakeInitParams struct {
	Path     string `json:"path,omitempty" jsonschema:"directory to initialise, relative to the workspace. Default: the workspace"`
	Template string `json:"template,omitempty" jsonschema:"flake template, e.g. templates#rust"`
}

func (h *handler) flakeInitHandler(ctx context.Context, req *mcp.CallToolRequest, params flakeInitParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.FlakeInit(ctx, nix.FlakeInitOptions{
		Path:     params.Path,
		Template: params.Template,
	}))
}

type flakeRefParams struct {
	Flake string `json:"flake,omitempty" jsonschema:"flake reference. Default: . (the workspace)"`
}

func (h *handler) flakeShowHandler(ctx context.Context, req *mcp.CallToolRequest, params flakeRefParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.FlakeShow(ctx, params.Flake))
}

func (h *handler) flakeCheckHandler(ctx context.Context, req *mcp.CallToolRequest, params flakeRefParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.FlakeCheck(ctx, params.Flake))
}

func (h *handler) flakeLockInfoHandler(ctx context.Context, req *mcp.CallToolRequest, params flakeRefParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.FlakeLockInfo(ctx, params.Flake))
}

type flakeUpdateParams struct {
	Flake  string   `json:"flake,omitempty" jsonschema:"flake reference. Default: ."`
	Inputs []string `json:"inputs,omitempty" jsonschema:"inputs to update. Default: all inputs"`
}

func (h *handler) flakeUpdateHandler(ctx context.Context, req *mcp.CallToolRequest, params flakeUpdateParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.FlakeUpdate(ctx, nix.FlakeUpdateOptions{
		Flake:  params.Flake,
		Inputs: params.Inputs,
	}))
}
