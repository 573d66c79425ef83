package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftworks/dripfeed/app/pipeline"
)

// PurgeTask removes terminal items that fell out of the retention window.
type PurgeTask struct {
	Task
	gate *pipeline.Gate
}

func NewPurgeTask(gate *pipeline.Gate) *PurgeTask {
	return &PurgeTask{
		Task: NewTask(TaskTypePurgeRetention, ""),
		gate: gate,
	}
}

func (t *PurgeTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	purged, err := t.gate.Purge(time.Now())
	if err != nil {
		return fmt.Errorf("failed to purge items: %w", err)
	}

	if purged > 0 {
		slog.Info("Task completed",
			"type", "PurgeRetention",
			"duration", t.GetDuration(),
			"purged", purged)
	}

	return nil
}
