package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Backup record statuses. A record moves pending -> processing -> one of
// the terminal states, and is never updated again once terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// RemoteLocation names one replicated copy of an archive.
type RemoteLocation struct {
	Backend string `json:"backend"`
	Key     string `json:"key"`
}

// RemoteLocations is a JSON-encoded list stored in a TEXT column.
type RemoteLocations []RemoteLocation

func (r RemoteLocations) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (r *RemoteLocations) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		if v == "" {
			*r = nil
			return nil
		}
		return json.Unmarshal([]byte(v), r)
	case []byte:
		if len(v) == 0 {
			*r = nil
			return nil
		}
		return json.Unmarshal(v, r)
	default:
		return fmt.Errorf("cannot scan %T into RemoteLocations", src)
	}
}

// BackupRecord is the durable row tracking one backup run.
type BackupRecord struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Filename        string          `db:"filename"`
	LocalPath       string          `db:"local_path"`
	RemoteLocations RemoteLocations `db:"remote_locations"`
	SizeBytes       int64           `db:"size_bytes"`
	BackupType      string          `db:"backup_type"`
	Status          string          `db:"status"`
	Error           string          `db:"error"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// NewBackupRecord starts a record in the pending state.
func NewBackupRecord(userID, filename, backupType string) *BackupRecord {
	now := time.Now().UTC()
	return &BackupRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Filename:   filename,
		BackupType: backupType,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CreateBackupRecord persists a new record.
func (db *DB) CreateBackupRecord(ctx context.Context, r *BackupRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO backups (id, user_id, filename, local_path, remote_locations,
		                     size_bytes, backup_type, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Filename, r.LocalPath, r.RemoteLocations,
		r.SizeBytes, r.BackupType, r.Status, r.Error, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create backup record: %w", err)
	}
	return nil
}

// UpdateBackupRecord persists the record's mutable columns.
func (db *DB) UpdateBackupRecord(ctx context.Context, r *BackupRecord) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE backups
		SET local_path = ?, remote_locations = ?, size_bytes = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		r.LocalPath, r.RemoteLocations, r.SizeBytes, r.Status, r.Error, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update backup record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update backup record: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup record not found: %s", r.ID)
	}
	return nil
}

// GetBackupRecord fetches one record by id.
func (db *DB) GetBackupRecord(ctx context.Context, id string) (*BackupRecord, error) {
	var r BackupRecord
	err := db.GetContext(ctx, &r, `
		SELECT id, user_id, filename, local_path, remote_locations,
		       size_bytes, backup_type, status, error, created_at, updated_at
		FROM backups
		WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get backup record: %w", err)
	}
	return &r, nil
}

// ListBackupRecordsByUser returns the user's records, newest first.
func (db *DB) ListBackupRecordsByUser(ctx context.Context, userID string) ([]BackupRecord, error) {
	var records []BackupRecord
	err := db.SelectContext(ctx, &records, `
		SELECT id, user_id, filename, local_path, remote_locations,
		       size_bytes, backup_type, status, error, created_at, updated_at
		FROM backups
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list backup records: %w", err)
	}
	return records, nil
}
