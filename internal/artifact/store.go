// Package artifact stores job files in an S3-compatible bucket and hands out
// presigned download links for them.
package artifact

import (
	"context"
	"errors"
	"time"
)

// ErrMissingBuffer is returned by Save when a path was meant to receive a
// file but no byte buffer was supplied.
var ErrMissingBuffer = errors.New("file buffer is undefined")

// Store saves named blobs and signs read links for them.
type Store interface {
	Save(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
