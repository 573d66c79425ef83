package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/jobqueue"
	"github.com/driftworks/dripfeed/app/keypool"
	"github.com/driftworks/dripfeed/app/slots"
)

type ContentFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

type Transformer interface {
	Transform(ctx context.Context, text, promptTemplate string) (string, error)
	Titles(ctx context.Context, text string, n int) []string
}

type SlotAllocator interface {
	Allocate(destCode string, baseline time.Time, itemID string) (string, int, error)
	Release(destCode, date string, index int) (*database.Slot, error)
	ConfirmJob(destCode, date string, index int, jobID string) error
}

type JobSubmitter interface {
	Submit(ctx context.Context, job jobqueue.Job) (string, error)
}

type ChannelSource interface {
	GetConfig(channelName string) (*channel.Config, error)
}

// SweepResult summarizes one pass over the due items.
type SweepResult struct {
	Due             int
	Completed       int
	Failed          int
	Skipped         int
	AbortedChannels []string
}

// Runner drives due items through the pipeline one at a time:
// waiting → processing → {completed, failed}. An item is marked processing
// before the first external call, so a crash mid-item leaves it visibly
// stuck rather than silently retried. There is no automatic retry; failed
// items wait for an operator requeue.
type Runner struct {
	gate       *Gate
	items      database.ItemRepository
	processed  database.ProcessedRepository
	channels   ChannelSource
	fetcher    ContentFetcher
	engine     Transformer
	allocator  SlotAllocator
	jobs       JobSubmitter
	titleCount int
	itemDelay  time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewRunner(
	gate *Gate,
	items database.ItemRepository,
	processed database.ProcessedRepository,
	channels ChannelSource,
	fetcher ContentFetcher,
	engine Transformer,
	allocator SlotAllocator,
	jobs JobSubmitter,
	titleCount int,
	itemDelay time.Duration,
) *Runner {
	return &Runner{
		gate:       gate,
		items:      items,
		processed:  processed,
		channels:   channels,
		fetcher:    fetcher,
		engine:     engine,
		allocator:  allocator,
		jobs:       jobs,
		titleCount: titleCount,
		itemDelay:  itemDelay,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// RunSweep processes every item due today. A quota or configuration
// failure aborts the rest of the item's channel for this sweep; other
// failures stay per-item. Re-running a sweep is safe: items already moved
// out of waiting are not picked up again.
func (r *Runner) RunSweep(ctx context.Context) (*SweepResult, error) {
	due, err := r.gate.Due(r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load due items: %w", err)
	}

	result := &SweepResult{Due: len(due)}
	aborted := make(map[string]string)
	first := true

	for _, item := range due {
		if reason, ok := aborted[item.ChannelName]; ok {
			slog.Debug("Item skipped, channel aborted this sweep",
				"channel", item.ChannelName, "video_id", item.VideoID, "reason", reason)
			result.Skipped++
			continue
		}

		if !first && r.itemDelay > 0 {
			if err := r.sleep(ctx, r.itemDelay); err != nil {
				return result, err
			}
		}
		first = false

		completed, abortReason := r.processItem(ctx, item)
		if completed {
			result.Completed++
		} else {
			result.Failed++
		}

		if abortReason != "" {
			aborted[item.ChannelName] = abortReason
			result.AbortedChannels = append(result.AbortedChannels, item.ChannelName)
		}
	}

	slog.Info("Sweep finished",
		"due", result.Due,
		"completed", result.Completed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"aborted_channels", len(result.AbortedChannels))

	return result, nil
}

// processItem runs one item through the pipeline. The second return value
// names the reason to abort the rest of the channel, or is empty.
func (r *Runner) processItem(ctx context.Context, item database.DelayedItem) (bool, string) {
	cfg, err := r.channels.GetConfig(item.ChannelName)
	if err != nil {
		r.failItem(item, "channel configuration missing")
		return false, "configuration missing"
	}

	if err := r.items.MarkProcessing(item.ID); err != nil {
		slog.Error("Failed to mark item processing", "item_id", item.ID, "error", err)
		return false, ""
	}

	prompt, err := cfg.ResolvePrompt()
	if err != nil {
		r.failItem(item, "transform prompt not configured")
		return false, "prompt not configured"
	}

	text, err := r.fetcher.Fetch(ctx, item.VideoID)
	if err != nil {
		if errors.Is(err, keypool.ErrExhausted) {
			r.failItem(item, "api key quota exhausted")
			return false, "key quota exhausted"
		}
		r.failItem(item, fmt.Sprintf("content fetch failed: %v", err))
		return false, ""
	}

	script, err := r.engine.Transform(ctx, text, prompt)
	if err != nil {
		r.failItem(item, fmt.Sprintf("transform failed: %v", err))
		return false, ""
	}

	titles := r.engine.Titles(ctx, script, r.titleCount)
	if len(titles) == 0 {
		titles = []string{item.Title}
	}

	date, index, err := r.allocator.Allocate(cfg.DestCode, r.now(), item.ID)
	if err != nil {
		if errors.Is(err, slots.ErrExhausted) {
			r.failItem(item, "no publication slot available")
		} else {
			r.failItem(item, fmt.Sprintf("slot allocation failed: %v", err))
		}
		return false, ""
	}

	jobID, err := r.jobs.Submit(ctx, jobqueue.Job{
		ChannelCode:     cfg.DestCode,
		VideoNumber:     index,
		Date:            date,
		ScriptText:      script,
		TitleCandidates: titles,
		ThumbnailURL:    item.ThumbnailURL,
		SourceTitle:     item.Title,
	})
	if err != nil {
		if _, releaseErr := r.allocator.Release(cfg.DestCode, date, index); releaseErr != nil {
			slog.Error("Failed to release slot after submit failure",
				"date", date, "dest_code", cfg.DestCode, "index", index, "error", releaseErr)
		}
		r.failItem(item, fmt.Sprintf("job submit failed: %v", err))
		return false, ""
	}

	if err := r.allocator.ConfirmJob(cfg.DestCode, date, index, jobID); err != nil {
		slog.Error("Failed to record job on slot", "item_id", item.ID, "job_id", jobID, "error", err)
	}

	if err := r.items.MarkCompleted(item.ID, script, titles, jobID); err != nil {
		slog.Error("Failed to mark item completed", "item_id", item.ID, "error", err)
		return false, ""
	}

	if err := r.processed.MarkProcessed(item.ChannelName, item.VideoID); err != nil {
		slog.Error("Failed to append to processed ledger", "item_id", item.ID, "error", err)
	}

	slog.Info("Item completed",
		"channel", item.ChannelName,
		"video_id", item.VideoID,
		"date", date,
		"video_number", index,
		"job_id", jobID)

	return true, ""
}

func (r *Runner) failItem(item database.DelayedItem, reason string) {
	slog.Warn("Item failed", "channel", item.ChannelName, "video_id", item.VideoID, "reason", reason)

	if err := r.items.MarkFailed(item.ID, reason); err != nil {
		slog.Error("Failed to mark item failed", "item_id", item.ID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
