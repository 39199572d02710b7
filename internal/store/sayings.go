package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tags is a JSON-encoded string list stored in a TEXT column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Tags) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		if v == "" {
			*t = nil
			return nil
		}
		return json.Unmarshal([]byte(v), t)
	case []byte:
		if len(v) == 0 {
			*t = nil
			return nil
		}
		return json.Unmarshal(v, t)
	default:
		return fmt.Errorf("cannot scan %T into Tags", src)
	}
}

// Saying is one short text record owned by a user. Every column is
// carried so an export/import round trip reconstructs the row exactly.
type Saying struct {
	ID        int64     `db:"id" json:"id"`
	UUID      string    `db:"uuid" json:"uuid"`
	Content   string    `db:"content" json:"content"`
	Author    string    `db:"author" json:"author"`
	Category  string    `db:"category" json:"category"`
	Tags      Tags      `db:"tags" json:"tags"`
	Language  string    `db:"language" json:"language"`
	Source    string    `db:"source" json:"source"`
	Rating    float64   `db:"rating" json:"rating"`
	ViewCount int64     `db:"view_count" json:"view_count"`
	IsPublic  bool      `db:"is_public" json:"is_public"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UserID    string    `db:"user_id" json:"-"`
}

// ListSayingsByUser returns every saying owned by the user, oldest first.
func (db *DB) ListSayingsByUser(ctx context.Context, userID string) ([]Saying, error) {
	var sayings []Saying
	err := db.SelectContext(ctx, &sayings, `
		SELECT id, uuid, content, author, category, tags, language, source,
		       rating, view_count, is_public, created_at, updated_at, user_id
		FROM sayings
		WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sayings: %w", err)
	}
	return sayings, nil
}

// CountSayingsByUser counts the user's sayings.
func (db *DB) CountSayingsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sayings WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count sayings: %w", err)
	}
	return count, nil
}

// InsertSaying creates a saying row for its UserID. Missing identity and
// timestamps are filled in, so both app writes and restores go through it.
func (db *DB) InsertSaying(ctx context.Context, s *Saying) error {
	if s.UUID == "" {
		s.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.Author == "" {
		s.Author = "Unknown"
	}
	if s.Category == "" {
		s.Category = "General"
	}
	if s.Language == "" {
		s.Language = "en"
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO sayings (uuid, content, author, category, tags, language, source,
		                     rating, view_count, is_public, created_at, updated_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UUID, s.Content, s.Author, s.Category, s.Tags, s.Language, s.Source,
		s.Rating, s.ViewCount, s.IsPublic, s.CreatedAt, s.UpdatedAt, s.UserID)
	if err != nil {
		return fmt.Errorf("insert saying: %w", err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		s.ID = id
	}
	return nil
}
