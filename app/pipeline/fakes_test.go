package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/jobqueue"
)

type fakeItemRepo struct {
	items map[string]*database.DelayedItem
	order []string
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string]*database.DelayedItem)}
}

func (r *fakeItemRepo) InsertItem(item database.DelayedItem) (bool, error) {
	for _, existing := range r.items {
		if existing.ChannelName == item.ChannelName && existing.VideoID == item.VideoID {
			return false, nil
		}
	}
	item.Status = database.StatusWaiting
	item.CreatedAt = time.Now()
	copied := item
	r.items[item.ID] = &copied
	r.order = append(r.order, item.ID)
	return true, nil
}

func (r *fakeItemRepo) GetItem(id string) (*database.DelayedItem, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *fakeItemRepo) GetDueItems(day string) ([]database.DelayedItem, error) {
	var due []database.DelayedItem
	for _, id := range r.order {
		item := r.items[id]
		if item.Status == database.StatusWaiting && item.ScheduledFor == day {
			due = append(due, *item)
		}
	}
	return due, nil
}

func (r *fakeItemRepo) MarkProcessing(id string) error {
	item, ok := r.items[id]
	if !ok || item.Status != database.StatusWaiting {
		return fmt.Errorf("item %s is not in waiting state", id)
	}
	item.Status = database.StatusProcessing
	item.UpdatedAt = time.Now()
	return nil
}

func (r *fakeItemRepo) MarkFailed(id string, reason string) error {
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	item.Status = database.StatusFailed
	item.ErrorMessage = reason
	return nil
}

func (r *fakeItemRepo) MarkCompleted(id string, scriptText string, titleCandidates []string, jobID string) error {
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	now := time.Now()
	item.Status = database.StatusCompleted
	item.ScriptText = scriptText
	item.TitleCandidates = titleCandidates
	item.JobID = jobID
	item.CompletedAt = &now
	return nil
}

func (r *fakeItemRepo) RequeueItem(id string, day string) error {
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	if item.Status != database.StatusFailed && item.Status != database.StatusProcessing {
		return fmt.Errorf("item %s is not in a requeueable state", id)
	}
	item.Status = database.StatusWaiting
	item.ErrorMessage = ""
	item.ScheduledFor = day
	return nil
}

func (r *fakeItemRepo) ListByStatus(status database.Status, limit int) ([]database.DelayedItem, error) {
	var result []database.DelayedItem
	for _, id := range r.order {
		if r.items[id].Status == status && len(result) < limit {
			result = append(result, *r.items[id])
		}
	}
	return result, nil
}

func (r *fakeItemRepo) ListStuckProcessing(olderThan time.Time) ([]database.DelayedItem, error) {
	var result []database.DelayedItem
	for _, id := range r.order {
		item := r.items[id]
		if item.Status == database.StatusProcessing && item.UpdatedAt.Before(olderThan) {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (r *fakeItemRepo) ListRecentlyCompleted(limit int) ([]database.DelayedItem, error) {
	return r.ListByStatus(database.StatusCompleted, limit)
}

func (r *fakeItemRepo) PurgeTerminalBefore(day string) (int, error) {
	purged := 0
	var kept []string
	for _, id := range r.order {
		item := r.items[id]
		if item.Status.IsTerminal() && item.ScheduledFor < day {
			delete(r.items, id)
			purged++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return purged, nil
}

func (r *fakeItemRepo) GetHealthSummary() (database.HealthSummary, error) {
	var summary database.HealthSummary
	for _, item := range r.items {
		summary.Total++
		switch item.Status {
		case database.StatusWaiting:
			summary.Waiting++
		case database.StatusProcessing:
			summary.Processing++
		case database.StatusCompleted:
			summary.Completed++
		case database.StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

type fakeProcessedRepo struct {
	processed map[string]bool
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{processed: make(map[string]bool)}
}

func (r *fakeProcessedRepo) key(channelName, videoID string) string {
	return channelName + "/" + videoID
}

func (r *fakeProcessedRepo) IsProcessed(channelName, videoID string) (bool, error) {
	return r.processed[r.key(channelName, videoID)], nil
}

func (r *fakeProcessedRepo) MarkProcessed(channelName, videoID string) error {
	r.processed[r.key(channelName, videoID)] = true
	return nil
}

func (r *fakeProcessedRepo) GetProcessedCount(channelName string) (int, error) {
	count := 0
	for key := range r.processed {
		if len(key) > len(channelName) && key[:len(channelName)+1] == channelName+"/" {
			count++
		}
	}
	return count, nil
}

type fakeChannelSource struct {
	configs map[string]*channel.Config
}

func (s *fakeChannelSource) GetConfig(name string) (*channel.Config, error) {
	cfg, ok := s.configs[name]
	if !ok {
		return nil, fmt.Errorf("channel config with name '%s' not found", name)
	}
	return cfg, nil
}

type fakeFetcher struct {
	texts  map[string]string
	errors map[string]error
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	f.calls++
	if err, ok := f.errors[videoID]; ok {
		return "", err
	}
	if text, ok := f.texts[videoID]; ok {
		return text, nil
	}
	return "transcript for " + videoID, nil
}

type fakeTransformer struct {
	transformErr error
	calls        int
}

func (t *fakeTransformer) Transform(ctx context.Context, text, promptTemplate string) (string, error) {
	t.calls++
	if t.transformErr != nil {
		return "", t.transformErr
	}
	return "script: " + text, nil
}

func (t *fakeTransformer) Titles(ctx context.Context, text string, n int) []string {
	titles := make([]string, 0, n)
	for i := 0; i < n; i++ {
		titles = append(titles, fmt.Sprintf("title %d", i+1))
	}
	return titles
}

type fakeAllocator struct {
	date      string
	nextIndex int
	allocErr  error
	released  []int
	confirmed map[int]string
}

func newFakeAllocator(date string) *fakeAllocator {
	return &fakeAllocator{date: date, confirmed: make(map[int]string)}
}

func (a *fakeAllocator) Allocate(destCode string, baseline time.Time, itemID string) (string, int, error) {
	if a.allocErr != nil {
		return "", 0, a.allocErr
	}
	a.nextIndex++
	return a.date, a.nextIndex, nil
}

func (a *fakeAllocator) Release(destCode, date string, index int) (*database.Slot, error) {
	a.released = append(a.released, index)
	return &database.Slot{Date: date, DestCode: destCode, Index: index}, nil
}

func (a *fakeAllocator) ConfirmJob(destCode, date string, index int, jobID string) error {
	a.confirmed[index] = jobID
	return nil
}

type fakeSubmitter struct {
	submitErr error
	jobs      []jobqueue.Job
}

func (s *fakeSubmitter) Submit(ctx context.Context, job jobqueue.Job) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.jobs = append(s.jobs, job)
	return fmt.Sprintf("job-%d", len(s.jobs)), nil
}
