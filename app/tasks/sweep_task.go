package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftworks/dripfeed/app/pipeline"
)

// SweepTask runs one pass of the pipeline over today's due items. Sweeps
// are never retried: the state machine already records per-item outcomes,
// and re-running is left to the next scheduler tick.
type SweepTask struct {
	Task
	runner *pipeline.Runner
}

func NewSweepTask(runner *pipeline.Runner) *SweepTask {
	task := NewTask(TaskTypeSweepPipeline, "")
	task.MaxRetries = 0
	task.Timeout = 2 * time.Hour

	return &SweepTask{
		Task:   task,
		runner: runner,
	}
}

func (t *SweepTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.runner.RunSweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	slog.Info("Task completed",
		"type", "SweepPipeline",
		"duration", t.GetDuration(),
		"due", result.Due,
		"completed", result.Completed,
		"failed", result.Failed,
		"skipped", result.Skipped)

	return nil
}
