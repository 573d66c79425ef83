package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
)

// ErrUnavailable is returned when the channel's feed cannot be fetched or
// parsed. It aborts the channel but not the whole poll cycle.
var ErrUnavailable = errors.New("source feed unavailable")

// Candidate is a feed entry that passed the channel filters and is not yet
// in the processed ledger.
type Candidate struct {
	VideoID         string
	Title           string
	Link            string
	ThumbnailURL    string
	PublishedAt     time.Time
	DurationSeconds int
}

// Monitor polls channel feeds and yields new candidates in feed order.
type Monitor struct {
	parser        *gofeed.Parser
	processedRepo database.ProcessedRepository
	channelRepo   database.ChannelRepository
}

func NewMonitor(processedRepo database.ProcessedRepository, channelRepo database.ChannelRepository, userAgent string) *Monitor {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent

	return &Monitor{
		parser:        parser,
		processedRepo: processedRepo,
		channelRepo:   channelRepo,
	}
}

// Poll fetches the channel's feed and returns entries that are new for the
// channel, preserving feed order. last_checked_at is updated even when
// nothing new is found.
func (m *Monitor) Poll(ctx context.Context, cfg *channel.Config) ([]Candidate, error) {
	feed, err := m.parser.ParseURLWithContext(cfg.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	maxItems := cfg.Settings.MaxItems
	items := feed.Items
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}

	var candidates []Candidate
	for _, item := range items {
		candidate := candidateFromItem(item)
		if candidate.VideoID == "" {
			slog.Debug("Feed entry has no usable id, skipped", "channel", cfg.Name, "title", item.Title)
			continue
		}

		if !matchesFilters(candidate, cfg.Filters) {
			slog.Debug("Feed entry filtered out", "channel", cfg.Name, "video_id", candidate.VideoID)
			continue
		}

		processed, err := m.processedRepo.IsProcessed(cfg.Name, candidate.VideoID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ledger for %s: %w", candidate.VideoID, err)
		}
		if processed {
			continue
		}

		candidates = append(candidates, candidate)
	}

	if err := m.channelRepo.UpdateLastChecked(cfg.Name, time.Now()); err != nil {
		slog.Error("Failed to update last checked time", "channel", cfg.Name, "error", err)
	}

	slog.Debug("Channel polled", "channel", cfg.Name, "entries", len(items), "new", len(candidates))
	return candidates, nil
}

func candidateFromItem(item *gofeed.Item) Candidate {
	candidate := Candidate{
		VideoID: extractVideoID(item),
		Title:   item.Title,
		Link:    item.Link,
	}

	if item.PublishedParsed != nil {
		candidate.PublishedAt = *item.PublishedParsed
	}
	if item.Image != nil {
		candidate.ThumbnailURL = item.Image.URL
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, group := range media["group"] {
			if thumbs, ok := group.Children["thumbnail"]; ok && len(thumbs) > 0 {
				if url := thumbs[0].Attrs["url"]; url != "" {
					candidate.ThumbnailURL = url
				}
			}
		}
	}

	if item.ITunesExt != nil && item.ITunesExt.Duration != "" {
		candidate.DurationSeconds = parseDuration(item.ITunesExt.Duration)
	}

	return candidate
}

// extractVideoID prefers the feed's native video id, then the GUID, then
// the v= query parameter of the link.
func extractVideoID(item *gofeed.Item) string {
	if yt, ok := item.Extensions["yt"]; ok {
		if ids, ok := yt["videoId"]; ok && len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}

	if item.GUID != "" {
		// YouTube GUIDs look like "yt:video:<id>".
		if id, found := strings.CutPrefix(item.GUID, "yt:video:"); found {
			return id
		}
		return item.GUID
	}

	if idx := strings.Index(item.Link, "v="); idx >= 0 {
		id := item.Link[idx+2:]
		if amp := strings.IndexByte(id, '&'); amp >= 0 {
			id = id[:amp]
		}
		return id
	}

	return ""
}

func matchesFilters(candidate Candidate, filters []channel.Filter) bool {
	for _, filter := range filters {
		switch filter.Field {
		case "title":
			if !matchesTitle(candidate.Title, filter) {
				return false
			}
		case "duration":
			// Entries without duration metadata pass.
			if candidate.DurationSeconds == 0 {
				continue
			}
			if filter.MinSeconds > 0 && candidate.DurationSeconds < filter.MinSeconds {
				return false
			}
			if filter.MaxSeconds > 0 && candidate.DurationSeconds > filter.MaxSeconds {
				return false
			}
		}
	}
	return true
}

func matchesTitle(title string, filter channel.Filter) bool {
	lowered := strings.ToLower(title)

	for _, exclude := range filter.Excludes {
		if strings.Contains(lowered, strings.ToLower(exclude)) {
			return false
		}
	}

	if len(filter.Includes) == 0 {
		return true
	}
	for _, include := range filter.Includes {
		if strings.Contains(lowered, strings.ToLower(include)) {
			return true
		}
	}
	return false
}

// parseDuration accepts plain seconds or HH:MM:SS / MM:SS forms.
func parseDuration(raw string) int {
	if seconds, err := strconv.Atoi(raw); err == nil {
		return seconds
	}

	parts := strings.Split(raw, ":")
	total := 0
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		total = total*60 + value
	}
	return total
}
