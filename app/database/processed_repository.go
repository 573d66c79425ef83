package database

import (
	"database/sql"
	"fmt"
	"time"
)

type processedRepository struct {
	db *DB
}

func NewProcessedRepository(db *DB) ProcessedRepository {
	return &processedRepository{db: db}
}

func (r *processedRepository) IsProcessed(channelName, videoID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`
		SELECT 1 FROM processed_items
		WHERE channel_name = ? AND video_id = ?
	`, channelName, videoID).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed ledger: %w", err)
	}

	return true, nil
}

func (r *processedRepository) MarkProcessed(channelName, videoID string) error {
	_, err := r.db.Exec(`
		INSERT INTO processed_items (channel_name, video_id, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (channel_name, video_id) DO NOTHING
	`, channelName, videoID, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to mark item processed: %w", err)
	}

	return nil
}

func (r *processedRepository) GetProcessedCount(channelName string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM processed_items WHERE channel_name = ?
	`, channelName).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to get processed count: %w", err)
	}

	return count, nil
}
