package cache

import (
	"context"
	"time"
)

// Cache holds short-lived JSON snapshots, currently the session status
// candidates poll while the pipeline runs. A miss is never an error.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// SessionStatusKey is the cache key for a session's polled status snapshot.
// The pipeline deletes it on every stage change so polls never see a stale
// terminal state.
func SessionStatusKey(sessionID string) string {
	return "session:" + sessionID + ":status"
}
