// Package nix implements the Nix, flake, NixOS and language operations.
// Every operation builds an argument list, performs exactly one
// invocation (two for the documented fallbacks) through a CommandRunner,
// and normalises the raw result into a typed response. It is consumed by
// both the MCP server and the CLI.
package nix

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// CommandRunner executes a single request.
// Implemented by runner.Runner and report.Recorder.
type CommandRunner interface {
	Run(ctx context.Context, req runner.Request) *runner.Result
}

// Engine holds shared dependencies for all operations.
type Engine struct {
	Config    *config.Config
	Runner    CommandRunner
	Workspace string // relative paths resolve against this directory
}

// exec runs argv with the timeout of domain d.
func (e *Engine) exec(ctx context.Context, d config.Domain, req runner.Request) *runner.Result {
	req.Timeout = e.Config.Timeout(d)
	return e.Runner.Run(ctx, req)
}

// tool returns the configured executable for name.
func (e *Engine) tool(name string) string {
	return e.Config.Tool(name)
}

// resolvePath makes p absolute relative to the workspace. An empty p
// selects the workspace.
func (e *Engine) resolvePath(p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) || e.Workspace == "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(e.Workspace, p))
}

// ResolveTool returns the absolute path of a named executable on PATH,
// or "" if it is not available.
func ResolveTool(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}

// toolInfo holds install metadata for a known tool.
type toolInfo struct {
	// Attr is the nixpkgs attribute that provides the tool.
	Attr string
	// AltInstall is an alternative install URL or instruction.
	AltInstall string
	// NixOSOnly is true if the tool ships with NixOS itself.
	NixOSOnly bool
}

// knownTools maps tool binary names to their install metadata.
var knownTools = map[string]toolInfo{
	"nix":             {AltInstall: "https://nixos.org/download/"},
	"nix-env":         {AltInstall: "https://nixos.org/download/"},
	"nix-instantiate": {AltInstall: "https://nixos.org/download/"},
	"statix":          {Attr: "statix"},
	"nixfmt":          {Attr: "nixfmt-rfc-style"},
	"nixos-option":    {Attr: "nixos-option", NixOSOnly: true},
	"nixos-rebuild":   {NixOSOnly: true},
}

// ErrToolUnavailable is returned when a required tool is not installed.
// It includes actionable install instructions when the tool is known.
type ErrToolUnavailable struct {
	Name string
	Info *toolInfo
}

func NewErrToolUnavailable(name string) ErrToolUnavailable {
	e := ErrToolUnavailable{Name: filepath.Base(name)}
	if info, ok := knownTools[e.Name]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed.", e.Name)

	if e.Info == nil {
		return b.String()
	}

	if e.Info.NixOSOnly && e.Info.Attr == "" {
		fmt.Fprintf(&b, " %s is only available on NixOS systems.", e.Name)
		return b.String()
	}
	if e.Info.Attr != "" {
		fmt.Fprintf(&b, " Install: nix profile install nixpkgs#%s", e.Info.Attr)
		if e.Info.NixOSOnly {
			fmt.Fprint(&b, " (requires a NixOS configuration to inspect)")
		}
	} else if e.Info.AltInstall != "" {
		fmt.Fprintf(&b, " Install: %s", e.Info.AltInstall)
	}
	return b.String()
}
