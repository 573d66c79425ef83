package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/keypool"
	"github.com/driftworks/dripfeed/app/slots"
)

const sweepDay = "2024-06-08"

func testChannelConfig(name, destCode, prompt string) *channel.Config {
	return &channel.Config{
		Name:     name,
		FeedURL:  "http://example.com/feed.xml",
		DestCode: destCode,
		Prompt:   prompt,
		Settings: channel.Settings{Enabled: true, MaxItems: 10},
	}
}

type runnerFixture struct {
	repo      *fakeItemRepo
	processed *fakeProcessedRepo
	channels  *fakeChannelSource
	fetcher   *fakeFetcher
	engine    *fakeTransformer
	allocator *fakeAllocator
	submitter *fakeSubmitter
	runner    *Runner
	sleeps    int
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		repo:      newFakeItemRepo(),
		processed: newFakeProcessedRepo(),
		channels:  &fakeChannelSource{configs: make(map[string]*channel.Config)},
		fetcher:   &fakeFetcher{texts: make(map[string]string), errors: make(map[string]error)},
		engine:    &fakeTransformer{},
		allocator: newFakeAllocator(sweepDay),
		submitter: &fakeSubmitter{},
	}

	gate := NewGate(f.repo, 7, 7)
	f.runner = NewRunner(gate, f.repo, f.processed, f.channels, f.fetcher,
		f.engine, f.allocator, f.submitter, 3, time.Second)
	f.runner.now = func() time.Time {
		return time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)
	}
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		return nil
	}

	return f
}

func (f *runnerFixture) addWaitingItem(t *testing.T, channelName, videoID string) {
	t.Helper()
	inserted, err := f.repo.InsertItem(database.DelayedItem{
		ID:           channelName + "-" + videoID,
		ChannelName:  channelName,
		VideoID:      videoID,
		Title:        "Video " + videoID,
		ThumbnailURL: "http://example.com/" + videoID + ".jpg",
		PublishedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		ScheduledFor: sweepDay,
	})
	if err != nil || !inserted {
		t.Fatalf("Failed to seed item %s: inserted=%v err=%v", videoID, inserted, err)
	}
}

func TestRunner_RunSweep_CompletesItem(t *testing.T) {
	f := newRunnerFixture()
	f.channels.configs["chan-a"] = testChannelConfig("chan-a", "CHA", "Rewrite this.")
	f.addWaitingItem(t, "chan-a", "vid-1")

	result, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if result.Due != 1 || result.Completed != 1 || result.Failed != 0 {
		t.Errorf("Unexpected sweep result: %+v", result)
	}

	item := f.repo.items["chan-a-vid-1"]
	if item.Status != database.StatusCompleted {
		t.Fatalf("Expected completed status, got %s", item.Status)
	}
	if item.JobID != "job-1" {
		t.Errorf("Expected job id recorded on item, got %q", item.JobID)
	}
	if item.ScriptText == "" || len(item.TitleCandidates) != 3 {
		t.Errorf("Expected script and 3 titles on the item, got %q / %v", item.ScriptText, item.TitleCandidates)
	}

	if processed, _ := f.processed.IsProcessed("chan-a", "vid-1"); !processed {
		t.Error("Expected completion to append to the processed ledger")
	}

	if len(f.submitter.jobs) != 1 {
		t.Fatalf("Expected 1 submitted job, got %d", len(f.submitter.jobs))
	}
	job := f.submitter.jobs[0]
	if job.ChannelCode != "CHA" || job.Date != sweepDay || job.VideoNumber != 1 {
		t.Errorf("Unexpected job payload: %+v", job)
	}
	if job.ThumbnailURL == "" || job.SourceTitle == "" {
		t.Errorf("Expected thumbnail and source title carried through: %+v", job)
	}

	if f.allocator.confirmed[1] != "job-1" {
		t.Errorf("Expected slot 1 confirmed with job-1, got %v", f.allocator.confirmed)
	}
}

func TestRunner_RunSweep_QuotaAbortsChannel(t *testing.T) {
	f := newRunnerFixture()
	f.channels.configs["chan-a"] = testChannelConfig("chan-a", "CHA", "Rewrite this.")
	f.channels.configs["chan-b"] = testChannelConfig("chan-b", "CHB", "Rewrite this.")
	f.addWaitingItem(t, "chan-a", "vid-1")
	f.addWaitingItem(t, "chan-a", "vid-2")
	f.addWaitingItem(t, "chan-b", "vid-3")

	f.fetcher.errors["vid-1"] = fmt.Errorf("fetch: %w", keypool.ErrExhausted)

	result, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if result.Failed != 1 || result.Skipped != 1 || result.Completed != 1 {
		t.Errorf("Unexpected sweep result: %+v", result)
	}
	if len(result.AbortedChannels) != 1 || result.AbortedChannels[0] != "chan-a" {
		t.Errorf("Expected chan-a aborted, got %v", result.AbortedChannels)
	}

	if f.repo.items["chan-a-vid-1"].Status != database.StatusFailed {
		t.Error("Expected the quota-hit item to be failed")
	}
	if f.repo.items["chan-a-vid-2"].Status != database.StatusWaiting {
		t.Error("Expected the skipped item to stay waiting")
	}
	if f.repo.items["chan-b-vid-3"].Status != database.StatusCompleted {
		t.Error("Expected the other channel to complete")
	}
}

func TestRunner_RunSweep_PromptMissingAbortsChannel(t *testing.T) {
	f := newRunnerFixture()
	f.channels.configs["chan-a"] = testChannelConfig("chan-a", "CHA", "")
	f.addWaitingItem(t, "chan-a", "vid-1")
	f.addWaitingItem(t, "chan-a", "vid-2")

	result, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if result.Failed != 1 || result.Skipped != 1 {
		t.Errorf("Unexpected sweep result: %+v", result)
	}
	if f.fetcher.calls != 0 {
		t.Errorf("Expected no content fetches without a prompt, got %d", f.fetcher.calls)
	}

	item := f.repo.items["chan-a-vid-1"]
	if item.Status != database.StatusFailed || item.ErrorMessage == "" {
		t.Errorf("Expected failed item with a recorded reason, got %s / %q", item.Status, item.ErrorMessage)
	}
}

func TestRunner_RunSweep_SubmitFailureReleasesSlot(t *testing.T) {
	f := newRunnerFixture()
	f.channels.configs["chan-a"] = testChannelConfig("chan-a", "CHA", "Rewrite this.")
	f.addWaitingItem(t, "chan-a", "vid-1")

	f.submitter.submitErr = fmt.Errorf("queue is down")

	result, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if result.Failed != 1 || result.Completed != 0 {
		t.Errorf("Unexpected sweep result: %+v", result)
	}
	if len(f.allocator.released) != 1 {
		t.Errorf("Expected the reserved slot to be released, got %v", f.allocator.released)
	}
	if processed, _ := f.processed.IsProcessed("chan-a", "vid-1"); processed {
		t.Error("A failed submit must not reach the processed ledger")
	}
	if f.repo.items["chan-a-vid-1"].Status != database.StatusFailed {
		t.Error("Expected the item to be failed after a submit error")
	}
}

func TestRunner_RunSweep_SlotExhaustedFailsItem(t *testing.T) {
	f := newRunnerFixture()
	f.channels.configs["chan-a"] = testChannelConfig("chan-a", "CHA", "Rewrite this.")
	f.addWaitingItem(t, "chan-a", "vid-1")

	f.allocator.allocErr = slots.ErrExhausted

	result, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("Unexpected sweep result: %+v", result)
	}
	if len(f.submitter.jobs) != 0 {
		t.Errorf("Expected no job submission without a slot, got %d", len(f.submitter.jobs))
	}
}

func TestRunner_RunSweep_Idempotent(t *testing.T) {
	f := newRunnerFixture()
	f.channels.configs["chan-a"] = testChannelConfig("chan-a", "CHA", "Rewrite this.")
	f.addWaitingItem(t, "chan-a", "vid-1")
	f.addWaitingItem(t, "chan-a", "vid-2")

	first, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("First sweep failed: %v", err)
	}
	if first.Completed != 2 {
		t.Fatalf("Expected 2 completions in the first sweep, got %d", first.Completed)
	}
	if f.sleeps != 1 {
		t.Errorf("Expected 1 inter-item delay for 2 items, got %d", f.sleeps)
	}

	second, err := f.runner.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	if second.Due != 0 {
		t.Errorf("Expected no due items on the second sweep, got %d", second.Due)
	}
	if len(f.submitter.jobs) != 2 {
		t.Errorf("Expected no additional submissions on re-run, got %d total", len(f.submitter.jobs))
	}
}
