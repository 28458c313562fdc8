package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nixkil/nixkil/internal/nix"
)

func registerNixOSTools(s *mcp.Server, h *handler) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "nixos_option_search",
		Description: `Search NixOS option names containing a query (case-insensitive).

Needs a nixpkgs channel on NIX_PATH. When options cannot be evaluated the result points at search.nixos.org instead.`,
	}, h.optionSearchHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nixos_option_info",
		Description: "Show the value, default, type and description of a NixOS option with nixos-option.",
	}, h.optionInfoHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "nixos_rebuild",
		Description: `Rebuild the NixOS system with nixos-rebuild, with elevated privileges.

Actions: ` + strings.Join(nix.RebuildActions, ", ") + `. Use dry_run to see the command without running it.`,
	}, h.rebuildHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nixos_generations",
		Description: "List the generations of the system profile or another profile, most recent last.",
	}, h.generationsHandler)
}

type optionSearchParams struct {
	Query      string `json:"query" jsonschema:"substring of the option name, e.g. nginx"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of options returned. Default: 20"`
}

func (h *handler) optionSearchHandler(ctx context.Context, req *mcp.CallToolRequest, params optionSearchParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.OptionSearch(ctx, nix.OptionSearchOptions{
		Query:      params.Query,
		MaxResults: params.MaxResults,
	}))
}

type optionInfoParams struct {
	Option string `json:"option" jsonschema:"full option path, e.g. services.nginx.enable"`
}

func (h *handler) optionInfoHandler(ctx context.Context, req *mcp.CallToolRequest, params optionInfoParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.OptionInfo(ctx, params.Option))
}

type rebuildParams struct {
	Action   string `json:"action,omitempty" jsonschema:"nixos-rebuild action. Default: switch"`
	Flake    string `json:"flake,omitempty" jsonschema:"flake containing the system configuration, e.g. /etc/nixos"`
	Hostname string `json:"hostname,omitempty" jsonschema:"nixosConfigurations attribute to build"`
	DryRun   bool   `json:"dry_run,omitempty" jsonschema:"report the command without running it"`
}

func (h *handler) rebuildHandler(ctx context.Context, req *mcp.CallToolRequest, params rebuildParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Rebuild(ctx, nix.RebuildOptions{
		Action:   params.Action,
		Flake:    params.Flake,
		Hostname: params.Hostname,
		DryRun:   params.DryRun,
	}))
}

type generationsParams struct {
	Profile string `json:"profile,omitempty" jsonschema:"system or a profile path. Default: system"`
	Limit   int    `json:"limit,omitempty" jsonschema:"number of most recent generations returned. Default: 10"`
}

func (h *handler) generationsHandler(ctx context.Context, req *mcp.CallToolRequest, params generationsParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Generations(ctx, nix.GenerationsOptions{
		Profile: params.Profile,
		Limit:   params.Limit,
	}))
}
