package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nixkil/nixkil/internal/nix"
)

func registerPackageTools(s *mcp.Server, h *handler) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "nix_search",
		Description: `Search a flake (default nixpkgs) for packages matching a query.

Returns attribute path, pname, version and description per hit, in the order nix search prints them,
truncated to max_results together with total_found and returned counts.`,
	}, h.searchHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_package_info",
		Description: "Return the meta attribute (description, license, homepage, maintainers, ...) of a package.",
	}, h.packageInfoHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_run",
		Description: "Run a package from a flake without installing it (nix run <flake>#<package> -- <args>).",
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "nix_shell",
		Description: `Run a command inside a temporary shell providing the given packages (nix shell).

Bare package names are taken from the default flake. The command is run with sh -c and must be valid POSIX shell.`,
	}, h.shellHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_build",
		Description: "Build a derivation or flake output and return its store paths.",
	}, h.buildHandler)
}

type searchParams struct {
	Query      string `json:"query" jsonschema:"search term, matched against package names and descriptions"`
	Flake      string `json:"flake,omitempty" jsonschema:"flake to search. Default: nixpkgs"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of packages returned. Default: 20"`
}

func (h *handler) searchHandler(ctx context.Context, req *mcp.CallToolRequest, params searchParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Search(ctx, nix.SearchOptions{
		Query:      params.Query,
		Flake:      params.Flake,
		MaxResults: params.MaxResults,
	}))
}

type packageInfoParams struct {
	Package string `json:"package" jsonschema:"package attribute name, e.g. ripgrep"`
	Flake   string `json:"flake,omitempty" jsonschema:"flake providing the package. Default: nixpkgs"`
	System  string `json:"system,omitempty" jsonschema:"Nix system, e.g. aarch64-darwin. Default: the host system"`
}

func (h *handler) packageInfoHandler(ctx context.Context, req *mcp.CallToolRequest, params packageInfoParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.PackageInfo(ctx, nix.PackageInfoOptions{
		Package: params.Package,
		Flake:   params.Flake,
		System:  params.System,
	}))
}

type runParams struct {
	Package string   `json:"package" jsonschema:"package attribute name"`
	Args    []string `json:"args,omitempty" jsonschema:"arguments passed to the program"`
	Flake   string   `json:"flake,omitempty" jsonschema:"flake providing the package. Default: nixpkgs"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Run(ctx, nix.RunOptions{
		Package: params.Package,
		Args:    params.Args,
		Flake:   params.Flake,
	}))
}

type shellParams struct {
	Packages []string `json:"packages" jsonschema:"packages to make available, either bare names or flake references such as github:owner/repo#pkg"`
	Command  string   `json:"command,omitempty" jsonschema:"POSIX shell command to run inside the shell"`
}

func (h *handler) shellHandler(ctx context.Context, req *mcp.CallToolRequest, params shellParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Shell(ctx, nix.ShellOptions{
		Packages: params.Packages,
		Command:  params.Command,
	}))
}

type buildParams struct {
	Target  string `json:"target" jsonschema:"installable to build, e.g. .#default or nixpkgs#hello"`
	OutLink string `json:"out_link,omitempty" jsonschema:"path of the result symlink. Default: ./result"`
	NoLink  bool   `json:"no_link,omitempty" jsonschema:"do not create a result symlink"`
}

func (h *handler) buildHandler(ctx context.Context, req *mcp.CallToolRequest, params buildParams) (*mcp.CallToolResult, any, error) {
	return h.jsonResult(h.engine.Build(ctx, nix.BuildOptions{
		Target:  params.Target,
		OutLink: params.OutLink,
		NoLink:  params.NoLink,
	}))
}
