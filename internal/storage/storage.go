package storage

import (
	"context"
	"time"
)

// Store persists and retrieves raw recording bytes. Implementations must be
// safe to call from background workers.
type Store interface {
	// Save writes content under a generated key of the form
	// <keyPrefix>_<uuid><extension> and returns that key.
	Save(ctx context.Context, content []byte, keyPrefix, extension string) (string, error)
	FetchBytes(ctx context.Context, key string) ([]byte, error)
	URLFor(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
