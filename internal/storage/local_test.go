package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalPutGetRoundTrip(t *testing.T) {
	local := NewLocal(t.TempDir())
	ctx := context.Background()

	content := "backup payload"
	if err := local.Put(ctx, "backup_1_a.zip", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("put: %v", err)
	}

	reader, err := local.Get(ctx, "backup_1_a.zip")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != content {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestLocalPutLeavesNoTempFiles(t *testing.T) {
	local := NewLocal(t.TempDir())
	ctx := context.Background()

	if err := local.Put(ctx, "a.zip", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	objects, err := local.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "a.zip" {
		t.Fatalf("expected only a.zip, got %+v", objects)
	}
}

func TestLocalGetMissingIsNotFound(t *testing.T) {
	local := NewLocal(t.TempDir())
	_, err := local.Get(context.Background(), "missing.zip")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalDeleteIdempotent(t *testing.T) {
	local := NewLocal(t.TempDir())
	ctx := context.Background()

	if err := local.Delete(ctx, "never-existed.zip"); err != nil {
		t.Fatalf("delete of missing key should succeed, got %v", err)
	}

	if err := local.Put(ctx, "b.zip", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := local.Delete(ctx, "b.zip"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := local.Delete(ctx, "b.zip"); err != nil {
		t.Fatalf("second delete should succeed, got %v", err)
	}
}

func TestLocalListFiltersByPrefix(t *testing.T) {
	local := NewLocal(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"backup_1_a.zip", "backup_1_b.zip", "backup_2_a.zip"} {
		if err := local.Put(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	objects, err := local.List(ctx, "backup_1_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	for _, obj := range objects {
		if obj.Backend != "local" {
			t.Fatalf("unexpected backend identity: %s", obj.Backend)
		}
	}
}

func TestLocalExists(t *testing.T) {
	local := NewLocal(t.TempDir())
	ctx := context.Background()

	ok, err := local.Exists(ctx, "nope.zip")
	if err != nil || ok {
		t.Fatalf("expected false,nil got %v,%v", ok, err)
	}
	if err := local.Put(ctx, "yes.zip", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = local.Exists(ctx, "yes.zip")
	if err != nil || !ok {
		t.Fatalf("expected true,nil got %v,%v", ok, err)
	}
}
