package database

import (
	"database/sql"
	"fmt"
	"time"
)

type slotRepository struct {
	db *DB
}

func NewSlotRepository(db *DB) SlotRepository {
	return &slotRepository{db: db}
}

func (r *slotRepository) GetOccupiedIndices(date, destCode string) ([]int, error) {
	rows, err := r.db.Query(`
		SELECT slot_index FROM slots
		WHERE slot_date = ? AND dest_code = ?
		ORDER BY slot_index
	`, date, destCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get occupied indices: %w", err)
	}
	defer rows.Close()

	var indices []int
	for rows.Next() {
		var index int
		if err := rows.Scan(&index); err != nil {
			return nil, fmt.Errorf("failed to scan slot index: %w", err)
		}
		indices = append(indices, index)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot rows: %w", err)
	}

	return indices, nil
}

func (r *slotRepository) InsertSlot(slot Slot) error {
	_, err := r.db.Exec(`
		INSERT INTO slots (slot_date, dest_code, slot_index, item_id, job_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, slot.Date, slot.DestCode, slot.Index, slot.ItemID, slot.JobID, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}

	return nil
}

func (r *slotRepository) UpdateSlotJob(date, destCode string, index int, jobID string) error {
	_, err := r.db.Exec(`
		UPDATE slots
		SET job_id = ?
		WHERE slot_date = ? AND dest_code = ? AND slot_index = ?
	`, jobID, date, destCode, index)

	if err != nil {
		return fmt.Errorf("failed to update slot job: %w", err)
	}

	return nil
}

func (r *slotRepository) DeleteSlot(date, destCode string, index int) (*Slot, error) {
	var slot Slot
	err := r.db.QueryRow(`
		SELECT slot_date, dest_code, slot_index, item_id, job_id, created_at
		FROM slots
		WHERE slot_date = ? AND dest_code = ? AND slot_index = ?
	`, date, destCode, index).Scan(
		&slot.Date, &slot.DestCode, &slot.Index, &slot.ItemID, &slot.JobID, &slot.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}

	_, err = r.db.Exec(`
		DELETE FROM slots
		WHERE slot_date = ? AND dest_code = ? AND slot_index = ?
	`, date, destCode, index)

	if err != nil {
		return nil, fmt.Errorf("failed to delete slot: %w", err)
	}

	return &slot, nil
}

func (r *slotRepository) ListSlots(from, to, destCode string) ([]Slot, error) {
	query := `
		SELECT slot_date, dest_code, slot_index, item_id, job_id, created_at
		FROM slots
		WHERE slot_date >= ? AND slot_date <= ?
	`
	args := []any{from, to}

	if destCode != "" {
		query += " AND dest_code = ?"
		args = append(args, destCode)
	}
	query += " ORDER BY slot_date, dest_code, slot_index"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		err := rows.Scan(&slot.Date, &slot.DestCode, &slot.Index, &slot.ItemID, &slot.JobID, &slot.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot row: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot rows: %w", err)
	}

	return slots, nil
}
