package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/SladkyCitron/slogcolor"
	"github.com/adrg/xdg"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/term"

	"github.com/nixkil/nixkil/internal/config"
	nixmcp "github.com/nixkil/nixkil/internal/mcp"
	"github.com/nixkil/nixkil/internal/report"
	"github.com/nixkil/nixkil/internal/runner"
)

// recentRuns is how many results are kept in memory for nix_inspect.
const recentRuns = 32

// app is the wiring shared by all commands.
type app struct {
	workspace string
	config    *config.Config
	log       *slog.Logger
	runner    *runner.Runner
	store     *report.LRUStore
}

func newApp() (*app, error) {
	dir := workspace
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining workspace: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	log := newLogger(os.Stderr, parseLevel(level))
	slog.SetDefault(log)

	elevate, err := cfg.Elevate()
	if err != nil {
		return nil, err
	}

	log.Debug("configuration loaded", "workspace", dir, "flake_root", loaded.FlakeRoot, "source", loaded.Source)

	return &app{
		workspace: dir,
		config:    cfg,
		log:       log,
		runner: &runner.Runner{
			Workspace: dir,
			MaxOutput: cfg.MaxOutputBytes(),
			Elevate:   elevate,
			Logger:    log,
		},
		store: report.NewLRUStore(recentRuns, report.NewDiskStore(runsDir())),
	}, nil
}

// server builds an MCP server whose invocations are recorded in the run store.
func (a *app) server() *mcp.Server {
	rec := &report.Recorder{Executor: a.runner, Store: a.store, Logger: a.log}
	return nixmcp.NewServer(a.config, rec, a.store, a.workspace,
		nixmcp.WithRunner(a.runner),
		nixmcp.WithLogger(a.log),
	)
}

// runsDir is where recorded runs are written. Empty selects a temporary
// directory.
func runsDir() string {
	if xdg.StateHome == "" {
		return ""
	}
	return filepath.Join(xdg.StateHome, "nixkil", "runs")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// newLogger writes colored logs to terminals and plain text otherwise.
// stdout is never used: it carries the MCP stdio transport.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slogcolor.NewHandler(w, &slogcolor.Options{Level: level}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
