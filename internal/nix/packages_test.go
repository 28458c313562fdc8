package nix

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nixkil/nixkil/internal/config"
)

const searchJSON = `{
  "legacyPackages.x86_64-linux.ripgrep": {"pname": "ripgrep", "version": "14.1.0", "description": "A fast grep"},
  "legacyPackages.x86_64-linux.ripgrep-all": {"pname": "ripgrep-all", "version": "0.10.6", "description": "rg for PDFs"},
  "legacyPackages.x86_64-linux.agrep": {"pname": "agrep", "version": "3.41.5", "description": "Approximate grep"}
}`

func TestSearch_DecodesHitsInOrder(t *testing.T) {
	e, f := newEngine(t, exited(0, searchJSON, ""))

	resp := e.Search(context.Background(), SearchOptions{Query: "grep"})

	if !resp.Success || resp.Outcome != OK {
		t.Fatalf("Status = %+v, want ok", resp.Status)
	}
	req := onlyRequest(t, f)
	if diff := cmp.Diff([]string{"nix", "search", "nixpkgs", "grep", "--json"}, req.Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if req.Timeout != config.DefaultPackagesTimeout {
		t.Errorf("Timeout = %v, want %v", req.Timeout, config.DefaultPackagesTimeout)
	}

	want := []SearchHit{
		{Attr: "legacyPackages.x86_64-linux.ripgrep", Pname: "ripgrep", Version: "14.1.0", Description: "A fast grep"},
		{Attr: "legacyPackages.x86_64-linux.ripgrep-all", Pname: "ripgrep-all", Version: "0.10.6", Description: "rg for PDFs"},
		{Attr: "legacyPackages.x86_64-linux.agrep", Pname: "agrep", Version: "3.41.5", Description: "Approximate grep"},
	}
	if diff := cmp.Diff(want, resp.Packages); diff != "" {
		t.Errorf("Packages mismatch (-want +got):\n%s", diff)
	}
	if resp.TotalFound != 3 || resp.Returned != 3 {
		t.Errorf("TotalFound/Returned = %d/%d, want 3/3", resp.TotalFound, resp.Returned)
	}
}

func TestSearch_KeepsExtraFields(t *testing.T) {
	out := `{"legacyPackages.x86_64-linux.jq": {"pname": "jq", "version": "1.7.1", "description": "", "outputs": ["bin", "man"], "priority": 5, "version_major": 1}}`
	e, _ := newEngine(t, exited(0, out, ""))

	resp := e.Search(context.Background(), SearchOptions{Query: "jq"})

	want := []SearchHit{{
		Attr:    "legacyPackages.x86_64-linux.jq",
		Pname:   "jq",
		Version: "1.7.1",
		Extra: map[string]any{
			"outputs":       []any{"bin", "man"},
			"priority":      json.Number("5"),
			"version_major": json.Number("1"),
		},
	}}
	if diff := cmp.Diff(want, resp.Packages); diff != "" {
		t.Errorf("Packages mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_NonObjectHitIsRaw(t *testing.T) {
	e, _ := newEngine(t, exited(0, `{"jq": "1.7.1"}`, ""))

	resp := e.Search(context.Background(), SearchOptions{Query: "jq"})

	if !resp.Success || resp.Outcome != Raw || resp.RawOutput != `{"jq": "1.7.1"}` {
		t.Errorf("resp = %+v, want raw output", resp)
	}
}

func TestSearch_TruncatesToPrefix(t *testing.T) {
	e, _ := newEngine(t, exited(0, searchJSON, ""))

	resp := e.Search(context.Background(), SearchOptions{Query: "grep", Flake: "github:NixOS/nixpkgs", MaxResults: 2})

	if resp.TotalFound != 3 {
		t.Errorf("TotalFound = %d, want 3", resp.TotalFound)
	}
	if resp.Returned != 2 || len(resp.Packages) != 2 {
		t.Fatalf("Returned = %d, len(Packages) = %d, want 2", resp.Returned, len(resp.Packages))
	}
	if resp.Packages[0].Pname != "ripgrep" || resp.Packages[1].Pname != "ripgrep-all" {
		t.Errorf("Packages = %+v, want the first two hits", resp.Packages)
	}
	if resp.Flake != "github:NixOS/nixpkgs" {
		t.Errorf("Flake = %q", resp.Flake)
	}
}

func TestSearch_MalformedJSON(t *testing.T) {
	e, _ := newEngine(t, exited(0, "* ripgrep (14.1.0)\n", ""))

	resp := e.Search(context.Background(), SearchOptions{Query: "ripgrep"})

	if !resp.Success || resp.Outcome != Raw {
		t.Fatalf("Status = %+v, want raw success", resp.Status)
	}
	if resp.RawOutput != "* ripgrep (14.1.0)\n" {
		t.Errorf("RawOutput = %q", resp.RawOutput)
	}
	if resp.Packages != nil {
		t.Errorf("Packages = %v, want nil", resp.Packages)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	e, f := newEngine(t)

	resp := e.Search(context.Background(), SearchOptions{Query: "  "})

	if resp.Success || resp.Outcome != Invalid {
		t.Errorf("Status = %+v, want invalid", resp.Status)
	}
	if len(f.reqs) != 0 {
		t.Errorf("got %d requests, want none", len(f.reqs))
	}
}

func TestSearch_ToolFailure(t *testing.T) {
	e, _ := newEngine(t, exited(1, "", "error: cannot find flake 'flake:nope'\n"))

	resp := e.Search(context.Background(), SearchOptions{Query: "x", Flake: "nope"})

	if resp.Success || resp.Outcome != Failed {
		t.Fatalf("Status = %+v, want failed", resp.Status)
	}
	if !strings.Contains(resp.Error, "cannot find flake") {
		t.Errorf("Error = %q, want stderr", resp.Error)
	}
	if resp.Invocation == nil || resp.Invocation.ExitCode == nil || *resp.Invocation.ExitCode != 1 {
		t.Errorf("Invocation = %+v, want exit code 1", resp.Invocation)
	}
}

func TestSearch_Timeout(t *testing.T) {
	e, _ := newEngine(t, timedOut())

	resp := e.Search(context.Background(), SearchOptions{Query: "x"})

	if resp.Success {
		t.Fatal("Success = true, want false")
	}
	if resp.Error != "command timed out after 1m0s" {
		t.Errorf("Error = %q, want timeout text verbatim", resp.Error)
	}
	if resp.Invocation.ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil", *resp.Invocation.ExitCode)
	}
}

func TestPackageInfo_FallsBackToDirectAttribute(t *testing.T) {
	e, f := newEngine(t,
		exited(1, "", "error: attribute 'legacyPackages' missing"),
		exited(0, `{"description":"Hello","license":{"spdxId":"GPL-3.0-or-later"}}`, ""),
	)

	resp := e.PackageInfo(context.Background(), PackageInfoOptions{Package: "hello", Flake: "github:me/pkgs"})

	if !resp.Success || resp.Outcome != OK {
		t.Fatalf("Status = %+v, want ok", resp.Status)
	}
	if len(f.reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(f.reqs))
	}
	if got := f.reqs[0].Argv[2]; got != "github:me/pkgs#legacyPackages.x86_64-linux.hello.meta" {
		t.Errorf("first attribute = %q", got)
	}
	if got := f.reqs[1].Argv[2]; got != "github:me/pkgs#hello.meta" {
		t.Errorf("second attribute = %q", got)
	}
	if resp.Attr != "github:me/pkgs#hello.meta" {
		t.Errorf("Attr = %q", resp.Attr)
	}
	want := map[string]any{
		"description": "Hello",
		"license":     map[string]any{"spdxId": "GPL-3.0-or-later"},
	}
	if diff := cmp.Diff(want, resp.Meta); diff != "" {
		t.Errorf("Meta mismatch (-want +got):\n%s", diff)
	}
}

func TestPackageInfo_UndecodableMetaIsRaw(t *testing.T) {
	e, f := newEngine(t, exited(0, "warning: unknown setting\n{ description = \"Hello\"; }\n", ""))

	resp := e.PackageInfo(context.Background(), PackageInfoOptions{Package: "hello"})

	if !resp.Success || resp.Outcome != Raw {
		t.Fatalf("Status = %+v, want raw success", resp.Status)
	}
	if len(f.reqs) != 1 {
		t.Errorf("got %d requests, want 1", len(f.reqs))
	}
	if resp.RawOutput != "warning: unknown setting\n{ description = \"Hello\"; }\n" {
		t.Errorf("RawOutput = %q", resp.RawOutput)
	}
	if resp.Meta != nil {
		t.Errorf("Meta = %v, want nil", resp.Meta)
	}
	if resp.Attr != "nixpkgs#legacyPackages.x86_64-linux.hello.meta" {
		t.Errorf("Attr = %q", resp.Attr)
	}
}

func TestPackageInfo_NotFound(t *testing.T) {
	e, _ := newEngine(t,
		exited(1, "", "first"),
		exited(1, "", "error: flake does not provide attribute 'nope'"),
	)

	resp := e.PackageInfo(context.Background(), PackageInfoOptions{Package: "nope"})

	if resp.Success || resp.Outcome != Failed {
		t.Fatalf("Status = %+v, want failed", resp.Status)
	}
	if resp.Error != "Package 'nope' not found" {
		t.Errorf("Error = %q", resp.Error)
	}
	if !strings.Contains(resp.Stderr, "does not provide attribute") {
		t.Errorf("Stderr = %q, want stderr of the last attempt", resp.Stderr)
	}
}

func TestRun_Argv(t *testing.T) {
	e, f := newEngine(t, exited(0, "hi\n", ""))

	resp := e.Run(context.Background(), RunOptions{Package: "hello", Args: []string{"--greeting", "hi"}})

	want := []string{"nix", "run", "nixpkgs#hello", "--", "--greeting", "hi"}
	if diff := cmp.Diff(want, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if !resp.Success || resp.Stdout != "hi\n" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", resp.ExitCode)
	}
}

func TestRun_Failure(t *testing.T) {
	e, _ := newEngine(t, exited(2, "partial\n", "error: unable to execute 'hello'\n"))

	resp := e.Run(context.Background(), RunOptions{Package: "hello"})

	if resp.Success || resp.Outcome != Failed {
		t.Fatalf("Status = %+v, want failed", resp.Status)
	}
	if resp.Error != "error: unable to execute 'hello'\n" {
		t.Errorf("Error = %q, want stderr", resp.Error)
	}
	want := Invocation{Stdout: "partial\n", Stderr: "error: unable to execute 'hello'\n", ExitCode: intPtr(2)}
	if diff := cmp.Diff(want, resp.Invocation); diff != "" {
		t.Errorf("Invocation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"nix", "run", "nixpkgs#hello", "--"}, resp.Command); diff != "" {
		t.Errorf("Command mismatch (-want +got):\n%s", diff)
	}
}

func TestShell_Timeout(t *testing.T) {
	e, _ := newEngine(t, timedOut())

	resp := e.Shell(context.Background(), ShellOptions{Packages: []string{"jq"}, Command: "sleep 600"})

	if resp.Success || resp.Error != "command timed out after 1m0s" {
		t.Errorf("Status = %+v, want the timeout error", resp.Status)
	}
	if resp.ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil", *resp.ExitCode)
	}
}

func TestShell_PrefixesBareNames(t *testing.T) {
	e, f := newEngine(t)

	resp := e.Shell(context.Background(), ShellOptions{
		Packages: []string{"jq", "github:me/tools#fmt"},
		Command:  "jq --version && fmt -h",
	})

	if !resp.Success {
		t.Fatalf("Status = %+v", resp.Status)
	}
	want := []string{"nix", "shell", "nixpkgs#jq", "github:me/tools#fmt", "--command", "sh", "-c", "jq --version && fmt -h"}
	if diff := cmp.Diff(want, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestShell_RejectsUnparsableCommand(t *testing.T) {
	e, f := newEngine(t)

	resp := e.Shell(context.Background(), ShellOptions{Packages: []string{"jq"}, Command: "if true; then echo hi"})

	if resp.Outcome != Invalid {
		t.Errorf("Outcome = %q, want invalid", resp.Outcome)
	}
	if len(f.reqs) != 0 {
		t.Errorf("got %d requests, want none", len(f.reqs))
	}
}

func TestBuild_OutputPaths(t *testing.T) {
	e, f := newEngine(t, exited(0, "/nix/store/abc123-hello-2.10\n", ""))

	resp := e.Build(context.Background(), BuildOptions{Target: "nixpkgs#hello", NoLink: true, OutLink: "ignored"})

	if !resp.Success {
		t.Fatalf("Status = %+v", resp.Status)
	}
	want := []string{"nix", "build", "nixpkgs#hello", "--no-link", "--print-out-paths"}
	if diff := cmp.Diff(want, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/nix/store/abc123-hello-2.10"}, resp.OutputPaths); diff != "" {
		t.Errorf("OutputPaths mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_OutLink(t *testing.T) {
	e, f := newEngine(t)

	e.Build(context.Background(), BuildOptions{Target: ".#default", OutLink: "out"})

	want := []string{"nix", "build", ".#default", "--out-link", "out", "--print-out-paths"}
	if diff := cmp.Diff(want, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Failure(t *testing.T) {
	e, _ := newEngine(t, exited(1, "", "error: builder failed"))

	resp := e.Build(context.Background(), BuildOptions{Target: ".#broken"})

	if resp.Success || resp.Error != "error: builder failed" {
		t.Errorf("Status = %+v, want failed with stderr", resp.Status)
	}
	if resp.OutputPaths != nil {
		t.Errorf("OutputPaths = %v, want nil", resp.OutputPaths)
	}
}
