package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/nixkil/nixkil"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-arguments]",
	Short: "Call one tool and print its result",
	Long: `Call one tool through an in-process MCP session and print its result.

Arguments are a JSON object, e.g.

  nixkil call nix_search '{"query": "ripgrep", "max_results": 5}'

The exit status is 1 when the tool reports a failure.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(toolsCmd, callCmd)
}

// session connects an in-process client to a fresh server.
func (a *app) session(ctx context.Context) (*mcp.ClientSession, func(), error) {
	ct, st := mcp.NewInMemoryTransports()
	ss, err := a.server().Connect(ctx, st, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("starting server: %w", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "nixkil-cli", Version: nixkil.Version}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		_ = ss.Close()
		return nil, nil, fmt.Errorf("connecting to server: %w", err)
	}

	return cs, func() {
		_ = cs.Close()
		_ = ss.Wait()
	}, nil
}

func runTools(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	cs, done, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	res, err := cs.ListTools(cmd.Context(), nil)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, tool := range res.Tools {
		summary, _, _ := strings.Cut(tool.Description, "\n")
		fmt.Fprintf(w, "%s\t%s\n", tool.Name, summary)
	}
	return w.Flush()
}

func runCall(cmd *cobra.Command, args []string) error {
	arguments, err := parseArguments(args[1:])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	cs, done, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	res, err := cs.CallTool(cmd.Context(), &mcp.CallToolParams{Name: args[0], Arguments: arguments})
	if err != nil {
		return fmt.Errorf("calling %s: %w", args[0], err)
	}

	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			fmt.Fprintln(cmd.OutOrStdout(), tc.Text)
		}
	}
	if res.IsError {
		return &exitCodeError{code: 1}
	}
	return nil
}

// parseArguments decodes the optional JSON object of tool arguments.
func parseArguments(args []string) (map[string]any, error) {
	arguments := map[string]any{}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return arguments, nil
	}
	if err := json.Unmarshal([]byte(args[0]), &arguments); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	return arguments, nil
}
