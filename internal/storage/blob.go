package storage

import "context"

// BlobStore holds the raw bytes of uploaded files and their derivatives.
// Paths returned by Save are opaque to callers and are stored as the file's
// local path.
type BlobStore interface {
	// Save writes data under a fresh random name and returns its path.
	Save(ctx context.Context, data []byte) (string, error)
	// Write writes data at path, replacing any previous content.
	Write(ctx context.Context, path string, data []byte) error
	// Read returns the content at path, or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Remove deletes the content at path. Missing paths are not an error.
	Remove(ctx context.Context, path string) error
	// Ping reports whether the backend is usable.
	Ping(ctx context.Context) error
}
