package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	nixmcp "github.com/nixkil/nixkil/internal/mcp"
	"github.com/nixkil/nixkil/internal/metrics"
)

var (
	httpAddr          string
	printInstructions bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the MCP server on stdio, or on HTTP with --http.

In HTTP mode the streamable MCP endpoint is served at / and Prometheus metrics at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&httpAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	mcpCmd.Flags().BoolVar(&printInstructions, "instructions", false, "print model instructions and exit")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if printInstructions {
		fmt.Fprint(cmd.OutOrStdout(), nixmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	server := a.server()

	if httpAddr != "" {
		return serveHTTP(ctx, a, server, httpAddr)
	}
	a.log.Info("serving MCP on stdio", "workspace", a.workspace)
	return server.Run(ctx, &mcp.StdioTransport{})
}

func serveHTTP(ctx context.Context, a *app, server *mcp.Server, addr string) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/", mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	a.log.Info("listening", "addr", addr, "workspace", a.workspace)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
