package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type itemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) ItemRepository {
	return &itemRepository{db: db}
}

const itemColumns = `id, channel_name, video_id, title, thumbnail_url, published_at,
	scheduled_for, status, error_message, script_text, title_candidates, job_id,
	created_at, updated_at, completed_at`

func (r *itemRepository) InsertItem(item DelayedItem) (bool, error) {
	candidates, err := json.Marshal(item.TitleCandidates)
	if err != nil {
		return false, fmt.Errorf("failed to marshal title candidates: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.db.Exec(`
		INSERT INTO delayed_items (
			id, channel_name, video_id, title, thumbnail_url, published_at,
			scheduled_for, status, error_message, script_text, title_candidates,
			job_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, '', ?, ?)
		ON CONFLICT (channel_name, video_id) DO NOTHING
	`, item.ID, item.ChannelName, item.VideoID, item.Title, item.ThumbnailURL,
		item.PublishedAt.UTC(), item.ScheduledFor, string(StatusWaiting),
		string(candidates), now, now)

	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

func (r *itemRepository) GetItem(id string) (*DelayedItem, error) {
	row := r.db.QueryRow(`SELECT `+itemColumns+` FROM delayed_items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

func (r *itemRepository) GetDueItems(day string) ([]DelayedItem, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM delayed_items
		WHERE status = ? AND scheduled_for = ?
		ORDER BY channel_name, created_at
	`, string(StatusWaiting), day)
	if err != nil {
		return nil, fmt.Errorf("failed to get due items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *itemRepository) MarkProcessing(id string) error {
	result, err := r.db.Exec(`
		UPDATE delayed_items
		SET status = ?, error_message = '', updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusProcessing), time.Now().UTC(), id, string(StatusWaiting))

	if err != nil {
		return fmt.Errorf("failed to mark item processing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s is not in waiting state", id)
	}

	return nil
}

func (r *itemRepository) MarkFailed(id string, reason string) error {
	_, err := r.db.Exec(`
		UPDATE delayed_items
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, string(StatusFailed), reason, time.Now().UTC(), id)

	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}

	return nil
}

func (r *itemRepository) MarkCompleted(id string, scriptText string, titleCandidates []string, jobID string) error {
	candidates, err := json.Marshal(titleCandidates)
	if err != nil {
		return fmt.Errorf("failed to marshal title candidates: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(`
		UPDATE delayed_items
		SET status = ?, error_message = '', script_text = ?, title_candidates = ?,
		    job_id = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(StatusCompleted), scriptText, string(candidates), jobID, now, now, id)

	if err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}

	return nil
}

func (r *itemRepository) RequeueItem(id string, day string) error {
	result, err := r.db.Exec(`
		UPDATE delayed_items
		SET status = ?, error_message = '', scheduled_for = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(StatusWaiting), day, time.Now().UTC(), id,
		string(StatusFailed), string(StatusProcessing))

	if err != nil {
		return fmt.Errorf("failed to requeue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s is not in a requeueable state", id)
	}

	return nil
}

func (r *itemRepository) ListByStatus(status Status, limit int) ([]DelayedItem, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM delayed_items
		WHERE status = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list items by status: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *itemRepository) ListStuckProcessing(olderThan time.Time) ([]DelayedItem, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM delayed_items
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at
	`, string(StatusProcessing), olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *itemRepository) ListRecentlyCompleted(limit int) ([]DelayedItem, error) {
	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM delayed_items
		WHERE status = ?
		ORDER BY completed_at DESC
		LIMIT ?
	`, string(StatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recently completed items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (r *itemRepository) PurgeTerminalBefore(day string) (int, error) {
	result, err := r.db.Exec(`
		DELETE FROM delayed_items
		WHERE status IN (?, ?) AND scheduled_for < ?
	`, string(StatusCompleted), string(StatusFailed), day)

	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal items: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *itemRepository) GetHealthSummary() (HealthSummary, error) {
	var summary HealthSummary
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'waiting' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM delayed_items
	`).Scan(
		&summary.Total,
		&summary.Waiting,
		&summary.Processing,
		&summary.Completed,
		&summary.Failed,
	)

	if err != nil {
		return HealthSummary{}, fmt.Errorf("failed to get health summary: %w", err)
	}

	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*DelayedItem, error) {
	var item DelayedItem
	var status, candidates string

	err := row.Scan(
		&item.ID, &item.ChannelName, &item.VideoID, &item.Title, &item.ThumbnailURL,
		&item.PublishedAt, &item.ScheduledFor, &status, &item.ErrorMessage,
		&item.ScriptText, &candidates, &item.JobID,
		&item.CreatedAt, &item.UpdatedAt, &item.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = Status(status)
	if err := json.Unmarshal([]byte(candidates), &item.TitleCandidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal title candidates: %w", err)
	}

	return &item, nil
}

func collectItems(rows *sql.Rows) ([]DelayedItem, error) {
	var items []DelayedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}
