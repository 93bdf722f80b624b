// Package blobstore is the object storage capability the engine consumes:
// presigned writes and reads, head checks and best-effort batch deletes.
package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

// ErrObjectNotFound is returned by Head when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is what Head reports about a stored object.
type ObjectInfo struct {
	SizeBytes   int64
	ContentType string
}

type Store interface {
	// ReserveWrite issues a time-boxed handle the client uses to push exactly
	// size bytes of contentType under key.
	ReserveWrite(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (*models.WriteHandle, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	ReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// BatchDelete deletes keys and returns the keys that could not be deleted
	// with their cause. A non-nil error means the call as a whole failed.
	BatchDelete(ctx context.Context, keys []string) (map[string]error, error)
}
