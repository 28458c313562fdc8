// Package report records the raw result of every tool invocation so that
// agents can retrieve full output after a truncated response. Records are
// never used in place of running a command.
package report

import (
	"context"
	"log/slog"

	"github.com/nixkil/nixkil/internal/runner"
)

// Store persists and retrieves invocation results by run ID.
type Store interface {
	Save(result *runner.Result) error
	Load(runID string) (*runner.Result, error)
}

// Executor runs a single request. Implemented by runner.Runner.
type Executor interface {
	Run(ctx context.Context, req runner.Request) *runner.Result
}

// Recorder is an Executor that saves every result to a Store.
type Recorder struct {
	Executor Executor
	Store    Store
	Logger   *slog.Logger
}

// Run delegates to the wrapped executor and records the result. A failure
// to record is logged and does not affect the returned result.
func (r *Recorder) Run(ctx context.Context, req runner.Request) *runner.Result {
	res := r.Executor.Run(ctx, req)
	if err := r.Store.Save(res); err != nil {
		log := r.Logger
		if log == nil {
			log = slog.Default()
		}
		log.Warn("recording run failed", "run_id", res.RunID, "error", err)
	}
	return res
}
