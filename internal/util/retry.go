package util

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping backoff between failures.
// Returns the last error, or ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt >= attempts {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
