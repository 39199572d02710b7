package store

import (
	"context"
	"fmt"
	"time"
)

// Setting is one key/value preference owned by a user.
type Setting struct {
	UserID    string    `db:"user_id" json:"-"`
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ListSettingsByUser returns the user's settings ordered by key.
func (db *DB) ListSettingsByUser(ctx context.Context, userID string) ([]Setting, error) {
	var settings []Setting
	err := db.SelectContext(ctx, &settings, `
		SELECT user_id, key, value, updated_at
		FROM user_settings
		WHERE user_id = ?
		ORDER BY key`, userID)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// CountSettingsByUser counts the user's settings.
func (db *DB) CountSettingsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM user_settings WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count settings: %w", err)
	}
	return count, nil
}

// UpsertSetting writes a setting, replacing any existing value for the
// same key. A setting key is unique per user, so restores overwrite.
func (db *DB) UpsertSetting(ctx context.Context, s *Setting) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.UserID, s.Key, s.Value, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
