package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Failure classes shared by every backend. Implementations wrap these so
// callers can branch with errors.Is without knowing the provider.
var (
	ErrNotFound        = errors.New("object not found")
	ErrUnauthenticated = errors.New("storage credentials rejected")
	ErrUnavailable     = errors.New("storage backend unavailable")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
)

// ObjectInfo describes one stored archive blob.
type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
	Backend  string
}

// Backend is the uniform capability surface over a storage medium.
// List gives no ordering guarantee; Delete is idempotent.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
