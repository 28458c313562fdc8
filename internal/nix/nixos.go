package nix

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/runner"
)

// RebuildActions are the nixos-rebuild actions accepted by Rebuild.
var RebuildActions = []string{"switch", "boot", "test", "build", "dry-activate", "dry-build"}

// SystemProfile is the profile path listed for the "system" profile.
const SystemProfile = "/nix/var/nix/profiles/system"

// DefaultGenerationLimit bounds Generations when the caller does not.
const DefaultGenerationLimit = 10

// optionSearchExpr is a function of the query; the query is supplied with
// --argstr so that it is never spliced into Nix source.
const optionSearchExpr = `{ query }:
let
  nixos = import <nixpkgs/nixos> { configuration = { }; };
  lib = nixos.pkgs.lib;
  needle = lib.toLower query;
  names = map (o: o.name) (lib.optionAttrSetToDocList nixos.options);
in
lib.concatStringsSep "\n" (builtins.filter (n: lib.hasInfix needle (lib.toLower n)) names)
`

// OptionSearchOptions selects NixOS options by name.
type OptionSearchOptions struct {
	Query      string
	MaxResults int // default: DefaultMaxResults
}

// OptionSearchResponse is the result of OptionSearch. OptionMatches is set
// only when the search ran; the fallback carries guidance instead.
type OptionSearchResponse struct {
	Status
	Query string `json:"query"`
	*OptionMatches
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Note       string `json:"note,omitempty"`
}

// OptionMatches lists matching option names with their counts.
type OptionMatches struct {
	Options    []string `json:"options"`
	TotalFound int      `json:"total_found"`
	Returned   int      `json:"returned"`
}

// OptionSearch lists NixOS option names containing Query. When evaluation
// is not possible (no NixOS channel, no nix) a successful response
// pointing at the options search website is returned instead.
func (e *Engine) OptionSearch(ctx context.Context, opts OptionSearchOptions) *OptionSearchResponse {
	resp := &OptionSearchResponse{Query: opts.Query}
	if strings.TrimSpace(opts.Query) == "" {
		resp.Status = statusInvalid("query is required")
		return resp
	}

	argv := []string{e.tool("nix"), "eval", "--impure", "--raw", "--expr", optionSearchExpr, "--argstr", "query", opts.Query}
	res := e.exec(ctx, config.NixOS, runner.Request{Argv: argv})
	if !res.Success {
		resp.Status = statusFallback(res)
		resp.Message = fmt.Sprintf("Search for '%s' in NixOS options", opts.Query)
		resp.Suggestion = "Visit " + e.optionsURL(opts.Query)
		resp.Note = "For comprehensive option search, use the NixOS options search website"
		return resp
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	names, total := truncate(nonEmptyLines(res.Stdout), limit)
	if names == nil {
		names = []string{}
	}
	resp.Status = statusOK(res)
	resp.OptionMatches = &OptionMatches{Options: names, TotalFound: total, Returned: len(names)}
	return resp
}

// OptionInfoResponse is the result of OptionInfo.
type OptionInfoResponse struct {
	Status
	Option        string `json:"option"`
	Info          string `json:"info,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Note          string `json:"note,omitempty"`
}

// OptionInfo describes one option through nixos-option, falling back to a
// documentation link when the tool is missing or fails.
func (e *Engine) OptionInfo(ctx context.Context, option string) *OptionInfoResponse {
	resp := &OptionInfoResponse{Option: option}
	if option == "" {
		resp.Status = statusInvalid("option is required")
		return resp
	}

	res := e.exec(ctx, config.NixOS, runner.Request{Argv: []string{e.tool("nixos-option"), option}})
	if res.Success {
		resp.Status = statusOK(res)
		resp.Info = res.Stdout
		return resp
	}

	resp.Status = statusFallback(res)
	resp.Documentation = e.optionsURL(option)
	resp.Note = "Use nixos-option command on a NixOS system for detailed info"
	if !res.Launched() && !res.TimedOut {
		resp.Note += ". " + NewErrToolUnavailable(e.tool("nixos-option")).Error()
	}
	return resp
}

func (e *Engine) optionsURL(query string) string {
	return e.Config.OptionsSearchURL() + "?query=" + url.QueryEscape(query)
}

// RebuildOptions selects a nixos-rebuild invocation.
type RebuildOptions struct {
	Action   string // one of RebuildActions, default switch
	Flake    string // e.g. /etc/nixos
	Hostname string // appended to Flake as #hostname
	DryRun   bool   // report the command without running it
}

// RebuildResponse is the result of Rebuild.
type RebuildResponse struct {
	Status
	Action  string   `json:"action,omitempty"`
	Message string   `json:"message,omitempty"`
	Note    string   `json:"note,omitempty"`
	Command []string `json:"command,omitempty"`
	*Invocation
}

// Rebuild runs nixos-rebuild with elevated privileges. Unknown actions are
// rejected without starting a process; dry runs and dry-* actions only
// report the command that would run.
func (e *Engine) Rebuild(ctx context.Context, opts RebuildOptions) *RebuildResponse {
	action := opts.Action
	if action == "" {
		action = "switch"
	}
	resp := &RebuildResponse{Action: action}

	if !slices.Contains(RebuildActions, action) {
		resp.Status = statusInvalid(fmt.Sprintf("Invalid action %q. Must be one of: %s", action, strings.Join(RebuildActions, ", ")))
		return resp
	}

	argv := []string{e.tool("nixos-rebuild"), action}
	if opts.Flake != "" {
		ref := opts.Flake
		if opts.Hostname != "" {
			ref += "#" + opts.Hostname
		}
		argv = append(argv, "--flake", ref)
	}

	if opts.DryRun || strings.HasPrefix(action, "dry") {
		prefix, err := e.Config.Elevate()
		if err != nil {
			resp.Status = statusInvalid(err.Error())
			return resp
		}
		resp.Status = Status{Success: true, Outcome: OK}
		resp.Command = append(slices.Clone(prefix), argv...)
		resp.Message = "Would run: " + shellquote.Join(resp.Command...)
		resp.Note = "Dry run - no changes made"
		return resp
	}

	res := e.exec(ctx, config.NixOS, runner.Request{Argv: argv, Elevate: true})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}
	resp.Status = statusOK(res)
	resp.Message = fmt.Sprintf("NixOS %s completed successfully", action)
	return resp
}

// GenerationsOptions selects a profile and how many generations to return.
type GenerationsOptions struct {
	Profile string // "system" or a profile path, default system
	Limit   int    // most recent generations returned, default 10
}

// Generation is one entry of nix-env --list-generations.
type Generation struct {
	ID      int    `json:"id"`
	Date    string `json:"date"`
	Current bool   `json:"current"`
}

// GenerationsResponse is the result of Generations.
type GenerationsResponse struct {
	Status
	Profile     string       `json:"profile"`
	Generations []Generation `json:"generations,omitempty"`
	Total       int          `json:"total"`
	*Invocation
}

// Generations lists the generations of a profile, most recent last.
func (e *Engine) Generations(ctx context.Context, opts GenerationsOptions) *GenerationsResponse {
	profile := opts.Profile
	if profile == "" {
		profile = "system"
	}
	path := profile
	if profile == "system" {
		path = SystemProfile
	}
	resp := &GenerationsResponse{Profile: profile}

	res := e.exec(ctx, config.NixOS, runner.Request{
		Argv:    []string{e.tool("nix-env"), "--list-generations", "--profile", path},
		Elevate: true,
	})
	if !res.Success {
		resp.Status = statusFailed(res, res.Stderr)
		resp.Invocation = invocation(res)
		return resp
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultGenerationLimit
	}
	resp.Status = statusOK(res)
	resp.Generations, resp.Total = parseGenerations(res.Stdout, limit)
	return resp
}

// parseGenerations splits each "<id> <date> <time> [(current)]" line on
// whitespace and keeps the last limit entries. Lines that do not start
// with a numeric id are ignored. The second result is the number of
// generations listed.
func parseGenerations(stdout string, limit int) ([]Generation, int) {
	var gens []Generation
	for _, line := range nonEmptyLines(stdout) {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		gens = append(gens, Generation{
			ID:      id,
			Date:    fields[1] + " " + fields[2],
			Current: strings.Contains(line, "(current)"),
		})
	}

	total := len(gens)
	if limit > 0 && total > limit {
		gens = gens[total-limit:]
	}
	return gens, total
}
