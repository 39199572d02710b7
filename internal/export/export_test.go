package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sayingslab/backupd/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "sayings.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSayings(t *testing.T, db *store.DB, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s := &store.Saying{
			Content:  fmt.Sprintf("saying %d", i),
			Author:   "tester",
			Category: "proverbs",
			Tags:     store.Tags{"a", "b"},
			UserID:   userID,
		}
		if err := db.InsertSaying(context.Background(), s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	db := openTestDB(t)
	svc := New(db)
	ctx := context.Background()

	seedSayings(t, db, "alice", 5)
	if err := db.UpsertSetting(ctx, &store.Setting{UserID: "alice", Key: "theme", Value: "dark"}); err != nil {
		t.Fatalf("seed setting: %v", err)
	}

	payloads, counts, err := svc.Export(ctx, "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if counts[KindSayings] != 5 || counts[KindSettings] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	// Restore-as: target user differs from the source user.
	for _, kind := range Kinds {
		created, itemErrs, err := svc.Import(ctx, "bob", kind, payloads[kind])
		if err != nil {
			t.Fatalf("import %s: %v", kind, err)
		}
		if len(itemErrs) != 0 {
			t.Fatalf("import %s: unexpected item errors: %v", kind, itemErrs)
		}
		if created != counts[kind] {
			t.Fatalf("import %s: created %d, want %d", kind, created, counts[kind])
		}
	}

	restored, err := db.ListSayingsByUser(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	original, err := db.ListSayingsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(restored) != len(original) {
		t.Fatalf("restored %d sayings, want %d", len(restored), len(original))
	}
	for i := range restored {
		if restored[i].Content != original[i].Content ||
			restored[i].Author != original[i].Author ||
			restored[i].Category != original[i].Category ||
			len(restored[i].Tags) != len(original[i].Tags) {
			t.Fatalf("field mismatch at %d: %+v vs %+v", i, restored[i], original[i])
		}
		if restored[i].UserID != "bob" {
			t.Fatalf("restored saying owned by %s", restored[i].UserID)
		}
	}
}

func TestExportOmitsOwner(t *testing.T) {
	db := openTestDB(t)
	svc := New(db)
	seedSayings(t, db, "alice", 1)

	payloads, _, err := svc.Export(context.Background(), "alice")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(string(payloads[KindSayings]), "user_id") {
		t.Fatalf("payload leaks the owning user id: %s", payloads[KindSayings])
	}
}

func TestImportSkipsMalformedItem(t *testing.T) {
	db := openTestDB(t)
	svc := New(db)
	ctx := context.Background()

	items := make([]json.RawMessage, 0, 10)
	for i := 0; i < 10; i++ {
		if i == 4 {
			// Item #5 has no content.
			items = append(items, json.RawMessage(`{"author":"nobody"}`))
			continue
		}
		items = append(items, json.RawMessage(fmt.Sprintf(`{"content":"saying %d"}`, i)))
	}
	payload, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	created, itemErrs, err := svc.Import(ctx, "carol", KindSayings, payload)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if created != 9 {
		t.Fatalf("created %d, want 9", created)
	}
	if len(itemErrs) != 1 || itemErrs[0].Index != 4 {
		t.Fatalf("expected one error at index 4, got %v", itemErrs)
	}
}

func TestImportRejectsMalformedPayload(t *testing.T) {
	db := openTestDB(t)
	svc := New(db)

	_, _, err := svc.Import(context.Background(), "carol", KindSayings, []byte("not json at all"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	count, countErr := db.CountSayingsByUser(context.Background(), "carol")
	if countErr != nil || count != 0 {
		t.Fatalf("expected zero imports, got %d (%v)", count, countErr)
	}
}

func TestImportUnknownKind(t *testing.T) {
	db := openTestDB(t)
	svc := New(db)
	if _, _, err := svc.Import(context.Background(), "u", "gadgets", []byte("[]")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
