// Command nixkil exposes the Nix tool family as structured operations,
// served over MCP or called directly.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nixkil/nixkil"
)

var (
	logLevel  string
	workspace string
)

var rootCmd = &cobra.Command{
	Use:   "nixkil",
	Short: "Structured access to nix, flakes and NixOS tooling",
	Long: `nixkil runs nix, nixos-rebuild, nix-env, nixos-option, nix-instantiate and statix
with timeouts and returns their results as JSON.

It is normally started as an MCP server ("nixkil mcp"). Single tools can be called from the
shell with "nixkil call".`,
	Version:       nixkil.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), nixkil.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default: log_level from config, else warn)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "C", "", "workspace directory (default: current directory)")
	rootCmd.AddCommand(versionCmd)
}

// exitCodeError ends the process with code without printing anything.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "nixkil: %v\n", err)
		os.Exit(1)
	}
}
