package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/pipeline"
	"github.com/driftworks/dripfeed/app/source"
)

type MonitorChannelTask struct {
	Task
	ChannelConfig *channel.Config
	monitor       *source.Monitor
	gate          *pipeline.Gate
}

func NewMonitorChannelTask(channelName string, channelConfig *channel.Config, monitor *source.Monitor, gate *pipeline.Gate) *MonitorChannelTask {
	task := NewTask(TaskTypeMonitorChannels, channelName)

	return &MonitorChannelTask{
		Task:          task,
		ChannelConfig: channelConfig,
		monitor:       monitor,
		gate:          gate,
	}
}

func (t *MonitorChannelTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.ChannelConfig.Settings.Enabled {
		slog.Debug("Channel disabled, skipping", "channel", t.ChannelName)
		return nil
	}

	candidates, err := t.monitor.Poll(ctx, t.ChannelConfig)
	if err != nil {
		if errors.Is(err, source.ErrUnavailable) {
			return fmt.Errorf("feed unavailable for %s: %w", t.ChannelName, err)
		}
		return fmt.Errorf("failed to poll channel %s: %w", t.ChannelName, err)
	}

	enqueued := 0
	for _, candidate := range candidates {
		inserted, err := t.gate.Enqueue(candidate, t.ChannelName)
		if err != nil {
			return fmt.Errorf("failed to enqueue candidate: %w", err)
		}
		if inserted {
			enqueued++
		}
	}

	slog.Info("Task completed",
		"type", "MonitorChannel",
		"channel", t.ChannelName,
		"duration", t.GetDuration(),
		"candidates", len(candidates),
		"enqueued", enqueued)

	return nil
}
