package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sayings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT 'Unknown',
	category TEXT NOT NULL DEFAULT 'General',
	tags TEXT, -- JSON array
	language TEXT NOT NULL DEFAULT 'en',
	source TEXT,
	rating REAL NOT NULL DEFAULT 0,
	view_count INTEGER NOT NULL DEFAULT 0,
	is_public INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	user_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sayings_user ON sayings(user_id, created_at);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, key)
);

CREATE TABLE IF NOT EXISTS backups (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	local_path TEXT,
	remote_locations TEXT, -- JSON array of {backend, key}
	size_bytes INTEGER NOT NULL DEFAULT 0,
	backup_type TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_user ON backups(user_id, created_at);
`

// DB wraps the sayings application database.
type DB struct {
	*sqlx.DB
}

// Open connects to the sqlite database and ensures the schema exists.
func Open(path string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{DB: db}, nil
}
