// Package nixkil exposes Nix, NixOS and flake tooling as structured
// operations for agents.
package nixkil

// Version is set at build time via -ldflags.
var Version = "dev"
