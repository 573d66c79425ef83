package database

import (
	"time"
)

type ChannelRepository interface {
	UpsertChannel(name, feedURL, destCode, title string) error
	GetChannel(name string) (*Channel, error)
	ListChannels() ([]Channel, error)
	UpdateLastChecked(name string, checkedAt time.Time) error
	GetChannelCount() (int, error)
}

type ItemRepository interface {
	// InsertItem inserts a new waiting item; returns false without error when
	// an item for the same (channel, video) pair already exists.
	InsertItem(item DelayedItem) (bool, error)
	GetItem(id string) (*DelayedItem, error)
	GetDueItems(day string) ([]DelayedItem, error)

	MarkProcessing(id string) error
	MarkFailed(id string, reason string) error
	MarkCompleted(id string, scriptText string, titleCandidates []string, jobID string) error
	// RequeueItem moves a failed item back to waiting and reschedules it.
	RequeueItem(id string, day string) error

	ListByStatus(status Status, limit int) ([]DelayedItem, error)
	ListStuckProcessing(olderThan time.Time) ([]DelayedItem, error)
	ListRecentlyCompleted(limit int) ([]DelayedItem, error)
	PurgeTerminalBefore(day string) (int, error)
	GetHealthSummary() (HealthSummary, error)
}

type ProcessedRepository interface {
	IsProcessed(channelName, videoID string) (bool, error)
	MarkProcessed(channelName, videoID string) error
	GetProcessedCount(channelName string) (int, error)
}

type SlotRepository interface {
	GetOccupiedIndices(date, destCode string) ([]int, error)
	InsertSlot(slot Slot) error
	UpdateSlotJob(date, destCode string, index int, jobID string) error
	DeleteSlot(date, destCode string, index int) (*Slot, error)
	ListSlots(from, to, destCode string) ([]Slot, error)
}

type KeyRepository interface {
	GetUsage(label string) (int, error)
	IncrementUsage(label string) error
	AllUsage() ([]KeyUsage, error)
}
