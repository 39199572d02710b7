package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sayings.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndListSayings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := &Saying{Content: "the early bird", Author: "folk", Tags: Tags{"morning", "birds"}, UserID: "u1"}
	second := &Saying{Content: "measure twice", Category: "craft", UserID: "u1"}
	other := &Saying{Content: "not yours", UserID: "u2"}
	for _, s := range []*Saying{first, second, other} {
		if err := db.InsertSaying(ctx, s); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if first.UUID == "" || first.ID == 0 {
		t.Fatalf("expected identity to be filled, got %+v", first)
	}
	if second.Author != "Unknown" || second.Language != "en" {
		t.Fatalf("expected defaults, got %+v", second)
	}

	sayings, err := db.ListSayingsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sayings) != 2 {
		t.Fatalf("expected 2 sayings, got %d", len(sayings))
	}
	if len(sayings[0].Tags) != 2 || sayings[0].Tags[0] != "morning" {
		t.Fatalf("tags did not round trip: %+v", sayings[0].Tags)
	}

	count, err := db.CountSayingsByUser(ctx, "u1")
	if err != nil || count != 2 {
		t.Fatalf("expected count 2, got %d (%v)", count, err)
	}
}

func TestUpsertSetting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertSetting(ctx, &Setting{UserID: "u1", Key: "theme", Value: "dark"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertSetting(ctx, &Setting{UserID: "u1", Key: "theme", Value: "light"}); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}

	settings, err := db.ListSettingsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(settings) != 1 || settings[0].Value != "light" {
		t.Fatalf("expected single overwritten setting, got %+v", settings)
	}
}

func TestBackupRecordLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	record := NewBackupRecord("u1", "backup_u1_20240101T000000Z_full.zip", "full")
	if record.Status != StatusPending {
		t.Fatalf("new record should be pending, got %s", record.Status)
	}
	if err := db.CreateBackupRecord(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}

	record.Status = StatusCompleted
	record.SizeBytes = 1234
	record.LocalPath = "/backups/" + record.Filename
	record.RemoteLocations = RemoteLocations{{Backend: "s3-main", Key: "sayings/" + record.Filename}}
	if err := db.UpdateBackupRecord(ctx, record); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := db.GetBackupRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusCompleted || loaded.SizeBytes != 1234 {
		t.Fatalf("unexpected record: %+v", loaded)
	}
	if len(loaded.RemoteLocations) != 1 || loaded.RemoteLocations[0].Backend != "s3-main" {
		t.Fatalf("remote locations did not round trip: %+v", loaded.RemoteLocations)
	}
}

func TestListBackupRecordsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	older := NewBackupRecord("u1", "a.zip", "full")
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := NewBackupRecord("u1", "b.zip", "full")
	for _, r := range []*BackupRecord{older, newer} {
		if err := db.CreateBackupRecord(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	records, err := db.ListBackupRecordsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].Filename != "b.zip" {
		t.Fatalf("expected newest first, got %+v", records)
	}
}
