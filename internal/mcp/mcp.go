// Package mcp provides the nixkil MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nixkil/nixkil"
	"github.com/nixkil/nixkil/internal/config"
	"github.com/nixkil/nixkil/internal/nix"
	"github.com/nixkil/nixkil/internal/report"
	"github.com/nixkil/nixkil/internal/runner"
)

//go:embed instructions.md
var Instructions string

// DefaultMaxFieldBytes caps each output field of a tool response; the full
// text stays available through nix_inspect.
const DefaultMaxFieldBytes = 16 << 10

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine   *nix.Engine
	runner   *runner.Runner // updated from client roots; nil when not owned by the server
	store    report.Store   // nil disables nix_inspect
	maxField int
	log      *slog.Logger
	lookPath nix.LookPathFunc
}

// NewServer creates an MCP server with all nixkil tools registered.
// Commands are executed through r, which normally records into store.
func NewServer(cfg *config.Config, r nix.CommandRunner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	so := serverOptions{maxField: DefaultMaxFieldBytes, logger: slog.Default()}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		engine: &nix.Engine{
			Config:    cfg,
			Runner:    r,
			Workspace: workspace,
		},
		runner:   so.runner,
		store:    store,
		maxField: so.maxField,
		log:      so.logger,
		lookPath: so.lookPath,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "nixkil", Version: nixkil.Version}, mcpOpts)

	registerPackageTools(s, h)
	registerFlakeTools(s, h)
	registerNixOSTools(s, h)
	registerLanguageTools(s, h)
	registerInspectTools(s, h)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "nix_doctor",
		Description: "Report the installed Nix version, the host system, and which external tools (statix, nixos-option, nixos-rebuild, ...) are available, with install hints for missing ones.",
	}, h.doctorHandler)

	return s
}

// ServerOption configures the nixkil MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	runner   *runner.Runner
	maxField int
	logger   *slog.Logger
	lookPath nix.LookPathFunc
}

// WithRunner lets the server retarget r to the workspace announced by the
// client's roots.
func WithRunner(r *runner.Runner) ServerOption {
	return func(o *serverOptions) {
		o.runner = r
	}
}

// WithMaxFieldBytes sets the per-field truncation limit of tool responses.
// Zero or negative disables truncation.
func WithMaxFieldBytes(n int) ServerOption {
	return func(o *serverOptions) {
		o.maxField = n
	}
}

// WithLogger sets the logger used by tool handlers.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// WithLookPath replaces PATH lookup in nix_doctor.
func WithLookPath(f nix.LookPathFunc) ServerOption {
	return func(o *serverOptions) {
		o.lookPath = f
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's engine, runner, and config if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn("ignoring client root", "root", workspace, "error", err)
		return
	}
	elevate, err := loaded.Config.Elevate()
	if err != nil {
		return
	}

	if h.runner != nil {
		h.runner.Workspace = workspace
		h.runner.MaxOutput = loaded.Config.MaxOutputBytes()
		h.runner.Elevate = elevate
	}
	h.engine.Config = loaded.Config
	h.engine.Workspace = workspace
	h.log.Debug("workspace updated from client roots", "workspace", workspace, "config", loaded.Source)
}

// truncatedFields are the response fields carrying raw tool output.
var truncatedFields = []string{"stdout", "stderr", "raw_output", "issues", "errors", "details", "info"}

// jsonResult renders a domain response as indented JSON. Long output
// fields are cut to maxField bytes and the response points at nix_inspect.
// The tool result is an error exactly when the operation did not succeed.
func (h *handler) jsonResult(resp nix.Response) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return errorResult(fmt.Sprintf("encoding response: %v", err))
	}

	status := resp.Report()
	if h.maxField > 0 {
		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&fields); err == nil && truncateFields(fields, h.maxField, status.RunID, h.store != nil) {
			data, _ = json.Marshal(fields)
		}
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return errorResult(fmt.Sprintf("encoding response: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.String()}},
		IsError: !status.Success,
	}, nil, nil
}

// truncateFields cuts every long output field in place and reports whether
// anything changed.
func truncateFields(fields map[string]any, limit int, runID string, inspectable bool) bool {
	var cut []string
	for _, name := range truncatedFields {
		s, ok := fields[name].(string)
		if !ok || len(s) <= limit {
			continue
		}
		fields[name] = cutUTF8(s, limit)
		cut = append(cut, name)
	}
	if len(cut) == 0 {
		return false
	}
	slices.Sort(cut)
	fields["truncated_fields"] = cut
	if inspectable && runID != "" {
		fields["hint"] = fmt.Sprintf("output truncated to %d bytes; call nix_inspect with run_id %q for the full text", limit, runID)
	}
	return true
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

// cutUTF8 returns at most limit bytes of s without splitting a rune.
func cutUTF8(s string, limit int) string {
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
