package database

import (
	"database/sql"
	"fmt"
	"time"
)

type channelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) UpsertChannel(name, feedURL, destCode, title string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO channels (name, feed_url, dest_code, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			feed_url = excluded.feed_url,
			dest_code = excluded.dest_code,
			title = excluded.title,
			updated_at = excluded.updated_at
	`, name, feedURL, destCode, title, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}

	return nil
}

func (r *channelRepository) GetChannel(name string) (*Channel, error) {
	var ch Channel
	err := r.db.QueryRow(`
		SELECT name, feed_url, dest_code, title, last_checked_at, created_at, updated_at
		FROM channels
		WHERE name = ?
	`, name).Scan(
		&ch.Name, &ch.FeedURL, &ch.DestCode, &ch.Title,
		&ch.LastCheckedAt, &ch.CreatedAt, &ch.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return &ch, nil
}

func (r *channelRepository) ListChannels() ([]Channel, error) {
	rows, err := r.db.Query(`
		SELECT name, feed_url, dest_code, title, last_checked_at, created_at, updated_at
		FROM channels
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		err := rows.Scan(
			&ch.Name, &ch.FeedURL, &ch.DestCode, &ch.Title,
			&ch.LastCheckedAt, &ch.CreatedAt, &ch.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}

	return channels, nil
}

func (r *channelRepository) UpdateLastChecked(name string, checkedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE channels
		SET last_checked_at = ?, updated_at = ?
		WHERE name = ?
	`, checkedAt.UTC(), time.Now().UTC(), name)

	if err != nil {
		return fmt.Errorf("failed to update last checked time: %w", err)
	}

	return nil
}

func (r *channelRepository) GetChannelCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM channels").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get channel count: %w", err)
	}
	return count, nil
}
