package database

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a delayed item.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusWaiting,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Channel mirrors the registration state of a configured channel.
// Configuration itself lives in the channel YAML files; the table carries
// only what the source monitor mutates.
type Channel struct {
	Name          string
	FeedURL       string
	DestCode      string
	Title         string
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DelayedItem is a discovered item held behind the delay gate.
type DelayedItem struct {
	ID              string
	ChannelName     string
	VideoID         string
	Title           string
	ThumbnailURL    string
	PublishedAt     time.Time
	ScheduledFor    string // YYYY-MM-DD
	Status          Status
	ErrorMessage    string
	ScriptText      string
	TitleCandidates []string
	JobID           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Slot is one unit of per-day publishing capacity for a destination channel.
type Slot struct {
	Date      string // YYYY-MM-DD
	DestCode  string
	Index     int
	ItemID    string
	JobID     string
	CreatedAt time.Time
}

// KeyUsage is the persisted use count for one transcript API key.
type KeyUsage struct {
	Label     string
	UsedCount int
	UpdatedAt time.Time
}

// HealthSummary describes aggregated item counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Waiting    int
	Processing int
	Completed  int
	Failed     int
}
