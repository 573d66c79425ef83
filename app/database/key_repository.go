package database

import (
	"database/sql"
	"fmt"
	"time"
)

type keyRepository struct {
	db *DB
}

func NewKeyRepository(db *DB) KeyRepository {
	return &keyRepository{db: db}
}

func (r *keyRepository) GetUsage(label string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT used_count FROM key_usage WHERE key_label = ?
	`, label).Scan(&count)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get key usage: %w", err)
	}

	return count, nil
}

func (r *keyRepository) IncrementUsage(label string) error {
	_, err := r.db.Exec(`
		INSERT INTO key_usage (key_label, used_count, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (key_label) DO UPDATE SET
			used_count = used_count + 1,
			updated_at = excluded.updated_at
	`, label, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to increment key usage: %w", err)
	}

	return nil
}

func (r *keyRepository) AllUsage() ([]KeyUsage, error) {
	rows, err := r.db.Query(`
		SELECT key_label, used_count, updated_at
		FROM key_usage
		ORDER BY key_label
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list key usage: %w", err)
	}
	defer rows.Close()

	var usage []KeyUsage
	for rows.Next() {
		var u KeyUsage
		if err := rows.Scan(&u.Label, &u.UsedCount, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key usage row: %w", err)
		}
		usage = append(usage, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key usage rows: %w", err)
	}

	return usage, nil
}
