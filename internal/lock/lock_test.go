package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireUserCreatesLockDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks", "nested")

	l, err := AcquireUser(dir, "alice")
	if err != nil {
		t.Fatalf("acquire with fresh dir: %v", err)
	}
	defer l.Release()

	if _, err := os.Stat(filepath.Join(dir, "backupd_alice.lock")); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
}

func TestAcquireUserContention(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireUser(dir, "alice")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := AcquireUser(dir, "alice"); err == nil {
		t.Fatal("second acquire for the same user succeeded")
	}

	// A different user is unaffected.
	other, err := AcquireUser(dir, "bob")
	if err != nil {
		t.Fatalf("acquire for other user: %v", err)
	}
	other.Release()

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := AcquireUser(dir, "alice")
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	again.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}
