package nix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nixkil/nixkil/internal/runner"
)

func TestFlakeInit_ReportsCreatedFiles(t *testing.T) {
	e, f := newEngine(t)
	dir := filepath.Join(e.Workspace, "proj")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	f.onRun = func(req runner.Request) {
		for _, name := range []string{"flake.nix", ".envrc"} {
			if err := os.WriteFile(filepath.Join(req.Dir, name), nil, 0o644); err != nil {
				t.Error(err)
			}
		}
	}

	resp := e.FlakeInit(context.Background(), FlakeInitOptions{Path: "proj", Template: "templates#python"})

	if !resp.Success {
		t.Fatalf("Status = %+v", resp.Status)
	}
	req := onlyRequest(t, f)
	if req.Dir != dir {
		t.Errorf("Dir = %q, want %q", req.Dir, dir)
	}
	if diff := cmp.Diff([]string{"nix", "flake", "init", "--template", "templates#python"}, req.Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{".envrc", "flake.nix"}, resp.FilesCreated); diff != "" {
		t.Errorf("FilesCreated mismatch (-want +got):\n%s", diff)
	}
	if resp.Message != "Flake initialized in "+dir {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestFlakeInit_DefaultsToFlakeNix(t *testing.T) {
	e, _ := newEngine(t)

	resp := e.FlakeInit(context.Background(), FlakeInitOptions{})

	if diff := cmp.Diff([]string{"flake.nix"}, resp.FilesCreated); diff != "" {
		t.Errorf("FilesCreated mismatch (-want +got):\n%s", diff)
	}
	if resp.Path != e.Workspace {
		t.Errorf("Path = %q, want workspace", resp.Path)
	}
}

func TestFlakeShow_DecodesOutputs(t *testing.T) {
	e, f := newEngine(t, exited(0, `{"packages":{"x86_64-linux":{"default":{"type":"derivation"}}}}`, ""))

	resp := e.FlakeShow(context.Background(), "")

	if resp.Outcome != OK {
		t.Fatalf("Outcome = %q, want ok", resp.Outcome)
	}
	if diff := cmp.Diff([]string{"nix", "flake", "show", ".", "--json"}, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	want := map[string]any{
		"packages": map[string]any{"x86_64-linux": map[string]any{"default": map[string]any{"type": "derivation"}}},
	}
	if diff := cmp.Diff(want, resp.Outputs); diff != "" {
		t.Errorf("Outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestFlakeShow_Raw(t *testing.T) {
	e, _ := newEngine(t, exited(0, "git+file:///src\n└───packages", ""))

	resp := e.FlakeShow(context.Background(), ".")

	if !resp.Success || resp.Outcome != Raw {
		t.Fatalf("Status = %+v, want raw", resp.Status)
	}
	if resp.RawOutput == "" || resp.Outputs != nil {
		t.Errorf("RawOutput = %q, Outputs = %v", resp.RawOutput, resp.Outputs)
	}
}

func TestFlakeCheck(t *testing.T) {
	e, _ := newEngine(t, exited(0, "", ""), exited(1, "", "error: checks.x86_64-linux.fmt failed"))

	ok := e.FlakeCheck(context.Background(), ".")
	if !ok.Success || ok.Message != "Flake check passed" {
		t.Errorf("pass: %+v", ok)
	}

	bad := e.FlakeCheck(context.Background(), ".")
	if bad.Success || bad.Message != "Flake check failed" {
		t.Errorf("fail: %+v", bad)
	}
	if bad.Errors != "error: checks.x86_64-linux.fmt failed" {
		t.Errorf("Errors = %q, want stderr", bad.Errors)
	}
}

func TestFlakeUpdate_Inputs(t *testing.T) {
	e, f := newEngine(t)

	resp := e.FlakeUpdate(context.Background(), FlakeUpdateOptions{Flake: "/src", Inputs: []string{"nixpkgs", "home-manager"}})

	want := []string{"nix", "flake", "update", "nixpkgs", "home-manager", "/src"}
	if diff := cmp.Diff(want, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"nixpkgs", "home-manager"}, resp.InputsUpdated); diff != "" {
		t.Errorf("InputsUpdated mismatch (-want +got):\n%s", diff)
	}
}

func TestFlakeUpdate_All(t *testing.T) {
	e, _ := newEngine(t)

	resp := e.FlakeUpdate(context.Background(), FlakeUpdateOptions{})

	if resp.InputsUpdated != "all" {
		t.Errorf("InputsUpdated = %v, want all", resp.InputsUpdated)
	}
	if resp.Message != "Flake inputs updated" {
		t.Errorf("Message = %q", resp.Message)
	}
}

const metadataJSON = `{
  "description": "my flake",
  "url": "git+file:///src",
  "locks": {
    "nodes": {
      "nixpkgs": {
        "locked": {
          "type": "github",
          "owner": "NixOS",
          "repo": "nixpkgs",
          "rev": "0123456789abcdef0123456789abcdef01234567",
          "lastModified": 1700000000
        }
      },
      "root": {"inputs": {"nixpkgs": "nixpkgs"}}
    },
    "root": "root",
    "version": 7
  }
}`

func TestFlakeLockInfo(t *testing.T) {
	e, f := newEngine(t, exited(0, metadataJSON, ""))

	resp := e.FlakeLockInfo(context.Background(), "")

	if resp.Outcome != OK {
		t.Fatalf("Status = %+v, want ok", resp.Status)
	}
	if diff := cmp.Diff([]string{"nix", "flake", "metadata", ".", "--json"}, onlyRequest(t, f).Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	want := map[string]LockedInput{
		"nixpkgs": {Type: "github", Owner: "NixOS", Repo: "nixpkgs", Rev: "0123456789ab", LastModified: 1700000000},
	}
	if diff := cmp.Diff(want, resp.Inputs); diff != "" {
		t.Errorf("Inputs mismatch (-want +got):\n%s", diff)
	}
	if resp.Description != "my flake" {
		t.Errorf("Description = %q", resp.Description)
	}
}

func TestFlakeLockInfo_Raw(t *testing.T) {
	e, _ := newEngine(t, exited(0, "Resolved URL: git+file:///src", ""))

	resp := e.FlakeLockInfo(context.Background(), ".")

	if !resp.Success || resp.Outcome != Raw {
		t.Errorf("Status = %+v, want raw", resp.Status)
	}
	if resp.RawOutput != "Resolved URL: git+file:///src" {
		t.Errorf("RawOutput = %q", resp.RawOutput)
	}
}
