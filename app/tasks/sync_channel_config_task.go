package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
)

// SyncChannelConfigTask mirrors a channel's YAML configuration into the
// database. YAML stays authoritative; the table carries registration state
// and last-checked bookkeeping.
type SyncChannelConfigTask struct {
	Task
	ChannelConfig *channel.Config
	channelRepo   database.ChannelRepository
}

func NewSyncChannelConfigTask(channelName string, channelConfig *channel.Config, channelRepo database.ChannelRepository) *SyncChannelConfigTask {
	return &SyncChannelConfigTask{
		Task:          NewTask(TaskTypeSyncChannelConfig, channelName),
		ChannelConfig: channelConfig,
		channelRepo:   channelRepo,
	}
}

func (t *SyncChannelConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.channelRepo.UpsertChannel(
		t.ChannelConfig.Name,
		t.ChannelConfig.FeedURL,
		t.ChannelConfig.DestCode,
		t.ChannelConfig.Title,
	)
	if err != nil {
		return fmt.Errorf("failed to register channel %s: %w", t.ChannelName, err)
	}

	slog.Debug("Task completed",
		"type", "SyncChannelConfig",
		"channel", t.ChannelName,
		"duration", t.GetDuration())

	return nil
}
