package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/source"
)

const dateLayout = "2006-01-02"

// Gate holds candidates behind a publication delay. Due-ness is decided at
// day granularity: an item is due only on exactly its scheduled day. Items
// whose day has passed while they waited are never picked up again; they
// age out through the retention purge.
type Gate struct {
	items         database.ItemRepository
	delayDays     int
	retentionDays int
}

func NewGate(items database.ItemRepository, delayDays, retentionDays int) *Gate {
	return &Gate{
		items:         items,
		delayDays:     delayDays,
		retentionDays: retentionDays,
	}
}

// Enqueue records a candidate as a waiting item scheduled delayDays after
// its publication. Returns false without error when the (channel, item)
// pair already exists.
func (g *Gate) Enqueue(candidate source.Candidate, channelName string) (bool, error) {
	scheduledFor := candidate.PublishedAt.AddDate(0, 0, g.delayDays).Format(dateLayout)

	inserted, err := g.items.InsertItem(database.DelayedItem{
		ID:           uuid.NewString(),
		ChannelName:  channelName,
		VideoID:      candidate.VideoID,
		Title:        candidate.Title,
		ThumbnailURL: candidate.ThumbnailURL,
		PublishedAt:  candidate.PublishedAt,
		ScheduledFor: scheduledFor,
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue candidate %s: %w", candidate.VideoID, err)
	}

	if inserted {
		slog.Info("Candidate enqueued", "channel", channelName, "video_id", candidate.VideoID, "scheduled_for", scheduledFor)
	} else {
		slog.Debug("Candidate already enqueued", "channel", channelName, "video_id", candidate.VideoID)
	}

	return inserted, nil
}

// Due returns the waiting items scheduled for asOf's day.
func (g *Gate) Due(asOf time.Time) ([]database.DelayedItem, error) {
	return g.items.GetDueItems(asOf.Format(dateLayout))
}

// Purge deletes completed and failed items whose scheduled day fell out of
// the retention window. Returns the number of deleted items.
func (g *Gate) Purge(asOf time.Time) (int, error) {
	cutoff := asOf.AddDate(0, 0, -g.retentionDays).Format(dateLayout)
	return g.items.PurgeTerminalBefore(cutoff)
}
