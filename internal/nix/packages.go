package nix

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"mvdan.cc/sh/v3/syntax"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// DefaultMaxResults bounds search results when the caller does not.
const DefaultMaxResults = 20

// SearchOptions selects what nix search looks for.
type SearchOptions struct {
	Query      string
	Flake      string // default: configured flake (nixpkgs)
	MaxResults int    // default: DefaultMaxResults
}

// SearchHit is one package from nix search --json. Fields other than
// string-valued pname, version and description are kept in Extra as decoded.
type SearchHit struct {
	Attr        string         `json:"attr"`
	Pname       string         `json:"pname"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SearchResponse is the result of Search.
type SearchResponse struct {
	Status
	Flake      string      `json:"flake"`
	Query      string      `json:"query"`
	Packages   []SearchHit `json:"packages,omitempty"`
	TotalFound int         `json:"total_found"`
	Returned   int         `json:"returned"`
	RawOutput  string      `json:"raw_output,omitempty"`
	*Invocation
}

// Search runs nix search and returns hits in the order the tool printed
// them, truncated to MaxResults.
func (e *Engine) Search(ctx context.Context, opts SearchOptions) *SearchResponse {
	flake := e.flakeOr(opts.Flake)
	resp := &SearchResponse{Flake: flake, Query: opts.Query}
	if strings.TrimSpace(opts.Query) == "" {
		resp.Status = statusInvalid("query is required")
		return resp
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	argv := []string{e.tool("nix"), "search", flake, opts.Query, "--json"}
	res := e.exec(ctx, config.Packages, runner.Request{Argv: argv})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	hits, ok := parseSearchHits(res.Stdout)
	if !ok {
		resp.Status = statusRaw(res)
		resp.RawOutput = res.Stdout
		return resp
	}

	resp.Status = statusOK(res)
	resp.Packages, resp.TotalFound = truncate(hits, limit)
	resp.Returned = len(resp.Packages)
	return resp
}

// parseSearchHits walks the nix search JSON object in document order.
// Every hit must itself be an object.
func parseSearchHits(stdout string) ([]SearchHit, bool) {
	if !gjson.Valid(stdout) {
		return nil, false
	}
	root := gjson.Parse(stdout)
	if !root.IsObject() {
		return nil, false
	}

	hits := []SearchHit{}
	ok := true
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			ok = false
			return false
		}
		hits = append(hits, searchHit(key.String(), value))
		return true
	})
	if !ok {
		return nil, false
	}
	return hits, true
}

func searchHit(attr string, value gjson.Result) SearchHit {
	hit := SearchHit{Attr: attr}
	value.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			switch k.String() {
			case "pname":
				hit.Pname = v.String()
				return true
			case "version":
				hit.Version = v.String()
				return true
			case "description":
				hit.Description = v.String()
				return true
			}
		}
		if hit.Extra == nil {
			hit.Extra = map[string]any{}
		}
		hit.Extra[k.String()], _ = decodeJSON(v.Raw)
		return true
	})
	return hit
}

// PackageInfoOptions identifies a package.
type PackageInfoOptions struct {
	Package string
	Flake   string // default: configured flake
	System  string // default: configured or host system
}

// PackageInfoResponse is the result of PackageInfo.
type PackageInfoResponse struct {
	Status
	Package   string `json:"package"`
	Attr      string `json:"attr,omitempty"` // attribute path that resolved
	Meta      any    `json:"meta,omitempty"`
	RawOutput string `json:"raw_output,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
}

// PackageInfo evaluates the package's meta attribute, first under
// legacyPackages.<system> and then directly under the flake.
func (e *Engine) PackageInfo(ctx context.Context, opts PackageInfoOptions) *PackageInfoResponse {
	resp := &PackageInfoResponse{Package: opts.Package}
	if opts.Package == "" {
		resp.Status = statusInvalid("package is required")
		return resp
	}

	flake := e.flakeOr(opts.Flake)
	system := opts.System
	if system == "" {
		system = e.Config.NixSystem()
	}

	attrs := []string{
		fmt.Sprintf("%s#legacyPackages.%s.%s.meta", flake, system, opts.Package),
		fmt.Sprintf("%s#%s.meta", flake, opts.Package),
	}

	var res *runner.Result
	for _, attr := range attrs {
		res = e.exec(ctx, config.Packages, runner.Request{Argv: []string{e.tool("nix"), "eval", attr, "--json"}})
		if !res.Success {
			continue
		}
		resp.Attr = attr
		meta, ok := decodeJSON(res.Stdout)
		if !ok {
			resp.Status = statusRaw(res)
			resp.RawOutput = res.Stdout
			return resp
		}
		resp.Status = statusOK(res)
		resp.Meta = meta
		return resp
	}

	resp.Status = statusFailed(res, fmt.Sprintf("Package '%s' not found", opts.Package))
	resp.Stderr = res.Stderr
	return resp
}

// RunOptions selects a package to run.
type RunOptions struct {
	Package string
	Args    []string
	Flake   string // default: configured flake
}

// CommandResponse carries the output of a program started through nix run
// or nix shell.
type CommandResponse struct {
	Status
	Command []string `json:"command"`
	Invocation
}

// Run runs a package without installing it.
func (e *Engine) Run(ctx context.Context, opts RunOptions) *CommandResponse {
	if opts.Package == "" {
		return &CommandResponse{Status: statusInvalid("package is required")}
	}

	argv := []string{e.tool("nix"), "run", e.flakeOr(opts.Flake) + "#" + opts.Package, "--"}
	argv = append(argv, opts.Args...)

	return e.command(ctx, argv)
}

// ShellOptions lists the packages of a temporary shell.
type ShellOptions struct {
	Packages []string // bare names are taken from the configured flake
	Command  string   // optional POSIX shell command run inside the shell
}

// Shell runs a command inside a temporary shell with the given packages.
// A command that does not parse as shell is rejected before any process
// is started.
func (e *Engine) Shell(ctx context.Context, opts ShellOptions) *CommandResponse {
	if len(opts.Packages) == 0 {
		return &CommandResponse{Status: statusInvalid("at least one package is required")}
	}
	if opts.Command != "" {
		if _, err := syntax.NewParser().Parse(strings.NewReader(opts.Command), ""); err != nil {
			return &CommandResponse{Status: statusInvalid(fmt.Sprintf("invalid shell command: %v", err))}
		}
	}

	argv := []string{e.tool("nix"), "shell"}
	for _, pkg := range opts.Packages {
		if strings.Contains(pkg, "#") {
			argv = append(argv, pkg)
		} else {
			argv = append(argv, e.flakeOr("")+"#"+pkg)
		}
	}
	if opts.Command != "" {
		argv = append(argv, "--command", "sh", "-c", opts.Command)
	}

	return e.command(ctx, argv)
}

func (e *Engine) command(ctx context.Context, argv []string) *CommandResponse {
	res := e.exec(ctx, config.Packages, runner.Request{Argv: argv})
	resp := &CommandResponse{Command: argv, Invocation: *invocation(res)}
	if res.Success {
		resp.Status = statusOK(res)
	} else {
		resp.Status = statusFailed(res, res.Stderr)
	}
	return resp
}

// BuildOptions selects a derivation to build.
type BuildOptions struct {
	Target  string // flake output or path
	OutLink string // result symlink path, default ./result
	NoLink  bool   // do not create a result symlink; wins over OutLink
}

// BuildResponse is the result of Build.
type BuildResponse struct {
	Status
	Target      string   `json:"target"`
	OutputPaths []string `json:"output_paths,omitempty"`
	*Invocation
}

// Build builds a derivation and returns its store paths.
func (e *Engine) Build(ctx context.Context, opts BuildOptions) *BuildResponse {
	resp := &BuildResponse{Target: opts.Target}
	if opts.Target == "" {
		resp.Status = statusInvalid("target is required")
		return resp
	}

	argv := []string{e.tool("nix"), "build", opts.Target}
	if opts.NoLink {
		argv = append(argv, "--no-link")
	} else if opts.OutLink != "" {
		argv = append(argv, "--out-link", opts.OutLink)
	}
	argv = append(argv, "--print-out-paths")

	res := e.exec(ctx, config.Packages, runner.Request{Argv: argv})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	resp.Status = statusOK(res)
	resp.OutputPaths = nonEmptyLines(res.Stdout)
	return resp
}

func (e *Engine) flakeOr(flake string) string {
	if flake != "" {
		return flake
	}
	return e.Config.DefaultFlakeRef()
}
