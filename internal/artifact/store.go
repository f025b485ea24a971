// Package artifact persists rendered document files.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when an artifact does not exist
var ErrNotFound = errors.New("artifact not found")

// Store persists rendered files under structured keys
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// BatchKey returns the key of a bulk artifact. Row indexes are unique
// within a batch so keys never collide across concurrent batches.
func BatchKey(batchID string, rowIndex int, ext string) string {
	return fmt.Sprintf("batches/%s/%05d.%s", batchID, rowIndex, ext)
}

// DocumentKey returns the key of a single-generation artifact
func DocumentKey(docID, ext string) string {
	return fmt.Sprintf("documents/%s.%s", docID, ext)
}

// cleanKey rejects keys that could escape the store root
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty artifact key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned != key || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return cleaned, nil
}
