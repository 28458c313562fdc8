// Package config loads and validates the optional .nixkil.yaml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// FileName is the per-project configuration file name.
const FileName = ".nixkil.yaml"

// Default values for runner configuration.
const (
	DefaultLanguageTimeout = 60 * time.Second
	DefaultPackagesTimeout = 5 * time.Minute
	DefaultFlakesTimeout   = 5 * time.Minute
	DefaultNixOSTimeout    = 10 * time.Minute
	DefaultMaxOutput       = 4 << 20 // 4 MB
	DefaultFlake           = "nixpkgs"
	DefaultOptionsURL      = "https://search.nixos.org/options"
)

// Config holds the parsed .nixkil.yaml configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int            `yaml:"version"`
	Timeouts     TimeoutsConfig `yaml:"timeouts"`
	RawMaxOutput int            `yaml:"max_output"` // bytes per stream
	System       string         `yaml:"system"`     // e.g. x86_64-linux
	Flake        string         `yaml:"default_flake"`
	RawElevate   string         `yaml:"elevate"` // e.g. "sudo -n", "doas"
	Tools        ToolsConfig    `yaml:"tools"`
	OptionsURL   string         `yaml:"options_search_url"`
	LogLevel     string         `yaml:"log_level"` // debug, info, warn, error
}

// TimeoutsConfig holds per-domain timeouts as duration strings ("30s", "10m").
type TimeoutsConfig struct {
	Language string `yaml:"language"`
	Packages string `yaml:"packages"`
	Flakes   string `yaml:"flakes"`
	NixOS    string `yaml:"nixos"`
}

// ToolsConfig overrides the executables invoked for each tool.
type ToolsConfig struct {
	Nix            string `yaml:"nix"`
	NixosRebuild   string `yaml:"nixos_rebuild"`
	NixEnv         string `yaml:"nix_env"`
	NixosOption    string `yaml:"nixos_option"`
	NixInstantiate string `yaml:"nix_instantiate"`
	Statix         string `yaml:"statix"`
}

// Domain selects a timeout class.
type Domain int

const (
	Language Domain = iota
	Packages
	Flakes
	NixOS
)

// Timeout returns the configured timeout for the domain or its default.
func (c *Config) Timeout(d Domain) time.Duration {
	raw, def := "", DefaultPackagesTimeout
	switch d {
	case Language:
		raw, def = c.Timeouts.Language, DefaultLanguageTimeout
	case Packages:
		raw, def = c.Timeouts.Packages, DefaultPackagesTimeout
	case Flakes:
		raw, def = c.Timeouts.Flakes, DefaultFlakesTimeout
	case NixOS:
		raw, def = c.Timeouts.NixOS, DefaultNixOSTimeout
	}
	if raw != "" {
		dur, err := time.ParseDuration(raw)
		if err == nil && dur > 0 {
			return dur
		}
	}
	return def
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// NixSystem returns the configured Nix system double, or one derived from
// the host platform.
func (c *Config) NixSystem() string {
	if c.System != "" {
		return c.System
	}
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + runtime.GOOS
}

// DefaultFlakeRef returns the flake used when callers do not name one.
func (c *Config) DefaultFlakeRef() string {
	if c.Flake != "" {
		return c.Flake
	}
	return DefaultFlake
}

// Elevate returns the argv prefix used for privileged invocations.
func (c *Config) Elevate() ([]string, error) {
	if c.RawElevate == "" {
		return []string{"sudo"}, nil
	}
	words, err := shellquote.Split(c.RawElevate)
	if err != nil {
		return nil, fmt.Errorf("parsing elevate %q: %w", c.RawElevate, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("elevate %q is empty", c.RawElevate)
	}
	return words, nil
}

// OptionsSearchURL returns the base URL of the NixOS options search site.
func (c *Config) OptionsSearchURL() string {
	if c.OptionsURL != "" {
		return c.OptionsURL
	}
	return DefaultOptionsURL
}

// Tool returns the executable for a logical tool name, honouring overrides.
func (c *Config) Tool(name string) string {
	var override string
	switch name {
	case "nix":
		override = c.Tools.Nix
	case "nixos-rebuild":
		override = c.Tools.NixosRebuild
	case "nix-env":
		override = c.Tools.NixEnv
	case "nixos-option":
		override = c.Tools.NixosOption
	case "nix-instantiate":
		override = c.Tools.NixInstantiate
	case "statix":
		override = c.Tools.Statix
	}
	if override != "" {
		return override
	}
	return name
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"timeouts.language": c.Timeouts.Language,
		"timeouts.packages": c.Timeouts.Packages,
		"timeouts.flakes":   c.Timeouts.Flakes,
		"timeouts.nixos":    c.Timeouts.NixOS,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", name, raw)
		}
	}
	if _, err := c.Elevate(); err != nil {
		return err
	}
	return nil
}

// LoadResult holds the parsed config and the discovered flake root.
type LoadResult struct {
	Config    *Config
	FlakeRoot string // directory containing flake.nix; falls back to workspace
	Source    string // file the config was read from, empty for defaults
}

// Load reads the configuration for workspace. The flake root is discovered
// by walking upward looking for flake.nix. The project file in the flake
// root wins over the user file in $XDG_CONFIG_HOME/nixkil; if neither
// exists a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findFlakeRoot(workspace)
	if err != nil {
		// No flake.nix found; use workspace as root.
		root = workspace
	}

	candidates := []string{filepath.Join(root, FileName)}
	if xdg.ConfigHome != "" {
		candidates = append(candidates, filepath.Join(xdg.ConfigHome, "nixkil", "config.yaml"))
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		cfg := &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating %s: %w", path, err)
		}
		return &LoadResult{Config: cfg, FlakeRoot: root, Source: path}, nil
	}

	return &LoadResult{Config: &Config{}, FlakeRoot: root}, nil
}

// findFlakeRoot walks upward from dir looking for a directory containing flake.nix.
func findFlakeRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "flake.nix")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("flake.nix not found")
		}
		dir = parent
	}
}
