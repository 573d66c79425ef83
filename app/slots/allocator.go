package slots

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftworks/dripfeed/app/database"
)

// ErrExhausted is returned when no free slot exists within the scan horizon.
var ErrExhausted = errors.New("no free slot within horizon")

const dateLayout = "2006-01-02"

// Allocator assigns (date, index) publication slots per destination code.
// Occupancy is determined by scanning the slot table; a slot is freed only
// by deleting its row.
type Allocator struct {
	repo        database.SlotRepository
	maxPerDay   int
	horizonDays int
}

func NewAllocator(repo database.SlotRepository, maxPerDay, horizonDays int) *Allocator {
	return &Allocator{
		repo:        repo,
		maxPerDay:   maxPerDay,
		horizonDays: horizonDays,
	}
}

// Allocate reserves the earliest free slot for the destination, starting at
// the baseline day: smallest free index first, rolling over to the next day
// when a day is full. The reservation row is written with the occupying
// item; the job id is filled in after a successful submit.
func (a *Allocator) Allocate(destCode string, baseline time.Time, itemID string) (string, int, error) {
	for offset := 0; offset < a.horizonDays; offset++ {
		date := baseline.AddDate(0, 0, offset).Format(dateLayout)

		occupied, err := a.repo.GetOccupiedIndices(date, destCode)
		if err != nil {
			return "", 0, fmt.Errorf("failed to scan slots for %s/%s: %w", date, destCode, err)
		}

		taken := make(map[int]bool, len(occupied))
		for _, index := range occupied {
			taken[index] = true
		}

		for index := 1; index <= a.maxPerDay; index++ {
			if taken[index] {
				continue
			}

			err := a.repo.InsertSlot(database.Slot{
				Date:     date,
				DestCode: destCode,
				Index:    index,
				ItemID:   itemID,
			})
			if err != nil {
				return "", 0, fmt.Errorf("failed to reserve slot %s/%s/%d: %w", date, destCode, index, err)
			}

			slog.Debug("Slot allocated", "date", date, "dest_code", destCode, "index", index, "item_id", itemID)
			return date, index, nil
		}
	}

	return "", 0, ErrExhausted
}

// Force reserves an exact slot without any capacity or horizon check. The
// caller is trusted; the insert still fails if the slot is already taken.
func (a *Allocator) Force(destCode, date string, index int, itemID string) error {
	err := a.repo.InsertSlot(database.Slot{
		Date:     date,
		DestCode: destCode,
		Index:    index,
		ItemID:   itemID,
	})
	if err != nil {
		return fmt.Errorf("failed to force slot %s/%s/%d: %w", date, destCode, index, err)
	}

	slog.Info("Slot forced", "date", date, "dest_code", destCode, "index", index, "item_id", itemID)
	return nil
}

// Release frees a slot and returns the deleted reservation, or nil if the
// slot was not occupied.
func (a *Allocator) Release(destCode, date string, index int) (*database.Slot, error) {
	slot, err := a.repo.DeleteSlot(date, destCode, index)
	if err != nil {
		return nil, fmt.Errorf("failed to release slot %s/%s/%d: %w", date, destCode, index, err)
	}

	if slot != nil {
		slog.Info("Slot released", "date", date, "dest_code", destCode, "index", index, "item_id", slot.ItemID)
	}
	return slot, nil
}

// List returns reservations in the inclusive date range, optionally
// narrowed to one destination.
func (a *Allocator) List(from, to, destCode string) ([]database.Slot, error) {
	return a.repo.ListSlots(from, to, destCode)
}

// ConfirmJob records the downstream job occupying a reserved slot.
func (a *Allocator) ConfirmJob(destCode, date string, index int, jobID string) error {
	if err := a.repo.UpdateSlotJob(date, destCode, index, jobID); err != nil {
		return fmt.Errorf("failed to confirm slot job: %w", err)
	}
	return nil
}
