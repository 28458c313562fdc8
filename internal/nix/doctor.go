package nix

import (
	"context"
	"slices"
	"strings"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// ToolStatus reports whether one external tool resolves on PATH.
type ToolStatus struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
	Hint      string `json:"hint,omitempty"`
}

// DoctorResponse is the result of Doctor.
type DoctorResponse struct {
	Status
	NixVersion string       `json:"nix_version,omitempty"`
	System     string       `json:"system"`
	Flake      string       `json:"default_flake"`
	Tools      []ToolStatus `json:"tools"`
}

// LookPathFunc resolves an executable name to a path, or "" if missing.
type LookPathFunc func(name string) string

// Doctor reports the installed Nix version and which of the tools used by
// the other operations are available, with install hints for the rest.
// Success reflects whether nix itself could be run.
func (e *Engine) Doctor(ctx context.Context, lookPath LookPathFunc) *DoctorResponse {
	if lookPath == nil {
		lookPath = ResolveTool
	}
	resp := &DoctorResponse{
		System: e.Config.NixSystem(),
		Flake:  e.Config.DefaultFlakeRef(),
	}

	names := make([]string, 0, len(knownTools))
	for name := range knownTools {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		exe := e.tool(name)
		ts := ToolStatus{Name: name, Path: lookPath(exe)}
		ts.Available = ts.Path != ""
		if !ts.Available {
			ts.Hint = NewErrToolUnavailable(exe).Error()
		}
		resp.Tools = append(resp.Tools, ts)
	}

	res := e.exec(ctx, config.Language, runner.Request{Argv: []string{e.tool("nix"), "--version"}})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		return resp
	}
	resp.Status = statusOK(res)
	resp.NixVersion = strings.TrimSpace(res.Stdout)
	return resp
}
