package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads objects to durable storage. Settlement reports for
// finalized markets are written through this interface.
type BlobWriter interface {
	// Put uploads data in a single request with the given content type.
	Put(ctx context.Context, path string, data io.Reader, contentType string) error

	// PutMultipart uploads data in parts of partSize bytes, for payloads too
	// large for a single request.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves stored objects.
type BlobReader interface {
	// Get returns the object body. The caller must close the returned reader.
	// Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns metadata for all objects under the given key prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
