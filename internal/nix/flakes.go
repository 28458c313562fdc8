package nix

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// revPrefixLen is how many characters of a locked revision are reported.
const revPrefixLen = 12

// FlakeInitOptions selects where and from what a flake is initialised.
type FlakeInitOptions struct {
	Path     string // directory, default: workspace
	Template string // e.g. "templates#python"
}

// FlakeInitResponse is the result of FlakeInit.
type FlakeInitResponse struct {
	Status
	Path         string   `json:"path"`
	Message      string   `json:"message,omitempty"`
	FilesCreated []string `json:"files_created,omitempty"`
	*Invocation
}

// FlakeInit initialises a flake in Path and reports the files it created.
func (e *Engine) FlakeInit(ctx context.Context, opts FlakeInitOptions) *FlakeInitResponse {
	dir := e.resolvePath(opts.Path)
	resp := &FlakeInitResponse{Path: dir}

	argv := []string{e.tool("nix"), "flake", "init"}
	if opts.Template != "" {
		argv = append(argv, "--template", opts.Template)
	}

	before := listDir(dir)
	res := e.exec(ctx, config.Flakes, runner.Request{Argv: argv, Dir: dir})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	resp.Status = statusOK(res)
	resp.Message = fmt.Sprintf("Flake initialized in %s", dir)
	for _, name := range listDir(dir) {
		if !slices.Contains(before, name) {
			resp.FilesCreated = append(resp.FilesCreated, name)
		}
	}
	if len(resp.FilesCreated) == 0 {
		resp.FilesCreated = []string{"flake.nix"}
	}
	return resp
}

// listDir returns the sorted entry names of dir, or nil if it cannot be read.
func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// FlakeShowResponse is the result of FlakeShow.
type FlakeShowResponse struct {
	Status
	Flake     string `json:"flake"`
	Outputs   any    `json:"outputs,omitempty"`
	RawOutput string `json:"raw_output,omitempty"`
	*Invocation
}

// FlakeShow returns the output tree of a flake.
func (e *Engine) FlakeShow(ctx context.Context, ref string) *FlakeShowResponse {
	ref = flakeRefOr(ref)
	resp := &FlakeShowResponse{Flake: ref}

	res := e.exec(ctx, config.Flakes, runner.Request{Argv: []string{e.tool("nix"), "flake", "show", ref, "--json"}})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	outputs, ok := decodeJSON(res.Stdout)
	if !ok {
		resp.Status = statusRaw(res)
		resp.RawOutput = res.Stdout
		return resp
	}
	resp.Status = statusOK(res)
	resp.Outputs = outputs
	return resp
}

// FlakeCheckResponse is the result of FlakeCheck.
type FlakeCheckResponse struct {
	Status
	Flake   string `json:"flake"`
	Message string `json:"message"`
	Errors  string `json:"errors,omitempty"`
}

// FlakeCheck evaluates and checks a flake.
func (e *Engine) FlakeCheck(ctx context.Context, ref string) *FlakeCheckResponse {
	ref = flakeRefOr(ref)
	resp := &FlakeCheckResponse{Flake: ref}

	res := e.exec(ctx, config.Flakes, runner.Request{Argv: []string{e.tool("nix"), "flake", "check", ref}})
	if !res.Success {
		resp.Status = statusFailed(res, "")
		resp.Message = "Flake check failed"
		resp.Errors = res.Stderr
		return resp
	}
	resp.Status = statusOK(res)
	resp.Message = "Flake check passed"
	return resp
}

// FlakeUpdateOptions selects the lock entries to refresh.
type FlakeUpdateOptions struct {
	Flake  string
	Inputs []string // default: all inputs
}

// FlakeUpdateResponse is the result of FlakeUpdate. InputsUpdated is the
// list of inputs, or the string "all".
type FlakeUpdateResponse struct {
	Status
	Flake         string `json:"flake"`
	Message       string `json:"message,omitempty"`
	InputsUpdated any    `json:"inputs_updated,omitempty"`
	*Invocation
}

// FlakeUpdate updates the flake lock file.
func (e *Engine) FlakeUpdate(ctx context.Context, opts FlakeUpdateOptions) *FlakeUpdateResponse {
	ref := flakeRefOr(opts.Flake)
	resp := &FlakeUpdateResponse{Flake: ref}

	argv := []string{e.tool("nix"), "flake", "update"}
	argv = append(argv, opts.Inputs...)
	argv = append(argv, ref)

	res := e.exec(ctx, config.Flakes, runner.Request{Argv: argv})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	resp.Status = statusOK(res)
	resp.Message = "Flake inputs updated"
	if len(opts.Inputs) > 0 {
		resp.InputsUpdated = opts.Inputs
	} else {
		resp.InputsUpdated = "all"
	}
	return resp
}

// LockedInput summarises the locked source of one flake input.
type LockedInput struct {
	Type         string `json:"type,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Repo         string `json:"repo,omitempty"`
	Rev          string `json:"rev,omitempty"` // first 12 characters
	LastModified int64  `json:"lastModified,omitempty"`
}

// FlakeLockInfoResponse is the result of FlakeLockInfo.
type FlakeLockInfoResponse struct {
	Status
	Flake       string                 `json:"flake"`
	Description string                 `json:"description,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Inputs      map[string]LockedInput `json:"inputs,omitempty"`
	RawOutput   string                 `json:"raw_output,omitempty"`
	*Invocation
}

// FlakeLockInfo summarises the lock file through nix flake metadata.
func (e *Engine) FlakeLockInfo(ctx context.Context, ref string) *FlakeLockInfoResponse {
	ref = flakeRefOr(ref)
	resp := &FlakeLockInfoResponse{Flake: ref}

	res := e.exec(ctx, config.Flakes, runner.Request{Argv: []string{e.tool("nix"), "flake", "metadata", ref, "--json"}})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	if !gjson.Valid(res.Stdout) || !gjson.Parse(res.Stdout).IsObject() {
		resp.Status = statusRaw(res)
		resp.RawOutput = res.Stdout
		return resp
	}

	meta := gjson.Parse(res.Stdout)
	resp.Status = statusOK(res)
	resp.Description = meta.Get("description").String()
	resp.URL = meta.Get("url").String()
	resp.Inputs = lockedInputs(meta.Get("locks.nodes"))
	return resp
}

// lockedInputs extracts the locked record of every node except root.
func lockedInputs(nodes gjson.Result) map[string]LockedInput {
	inputs := make(map[string]LockedInput)
	nodes.ForEach(func(name, node gjson.Result) bool {
		if name.String() == "root" {
			return true
		}
		locked := node.Get("locked")
		rev := locked.Get("rev").String()
		if len(rev) > revPrefixLen {
			rev = rev[:revPrefixLen]
		}
		inputs[name.String()] = LockedInput{
			Type:         locked.Get("type").String(),
			Owner:        locked.Get("owner").String(),
			Repo:         locked.Get("repo").String(),
			Rev:          rev,
			LastModified: locked.Get("lastModified").Int(),
		}
		return true
	})
	return inputs
}

func flakeRefOr(ref string) string {
	if ref == "" {
		return "."
	}
	return ref
}
