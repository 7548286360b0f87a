package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalStore keeps recordings on the local filesystem under baseDir.
// Keys are paths relative to baseDir.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "uploads"
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "recordings"), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Save(_ context.Context, content []byte, keyPrefix, extension string) (string, error) {
	key := filepath.Join("recordings", fmt.Sprintf("%s_%s%s", keyPrefix, uuid.NewString(), extension))
	if err := os.WriteFile(filepath.Join(s.baseDir, key), content, 0o644); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalStore) FetchBytes(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.baseDir, key))
}

// URLFor returns a file path rather than a signed URL; local storage has no
// expiry semantics.
func (s *LocalStore) URLFor(_ context.Context, key string, _ time.Duration) (string, error) {
	return filepath.Join(s.baseDir, key), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	return os.Remove(filepath.Join(s.baseDir, key))
}

// Path resolves a key to an absolute-ish local path without copying, so the
// transcription engine can read the file in place.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.baseDir, key)
}
