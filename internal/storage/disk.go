package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DiskStore keeps blobs as plain files under a root folder.
type DiskStore struct {
	root string
}

// NewDiskStore returns a store rooted at root. The folder is created on the
// first write.
func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

// Root returns the storage folder.
func (ds *DiskStore) Root() string {
	return ds.root
}

// Ping checks that the root folder exists, creating it if needed.
func (ds *DiskStore) Ping(_ context.Context) error {
	if err := os.MkdirAll(ds.root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage folder: %w", err)
	}
	info, err := os.Stat(ds.root)
	if err != nil {
		return fmt.Errorf("failed to stat storage folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", ds.root)
	}
	return nil
}

// Save writes data under root with a random UUID name.
func (ds *DiskStore) Save(ctx context.Context, data []byte) (string, error) {
	path := filepath.Join(ds.root, uuid.New().String())
	if err := ds.Write(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Write stores data at path atomically: the bytes are written to a temp file
// in the same folder, synced and renamed into place.
func (ds *DiskStore) Write(ctx context.Context, path string, data []byte) error {
	_, span := tracer.Start(ctx, "disk.write",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if err := ds.write(path, data); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Bool("write_success", true))
	return nil
}

func (ds *DiskStore) write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage folder: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set blob mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move blob into place: %w", err)
	}
	return nil
}

// Read returns the content at path.
func (ds *DiskStore) Read(ctx context.Context, path string) ([]byte, error) {
	_, span := tracer.Start(ctx, "disk.read",
		trace.WithAttributes(
			attribute.String("path", path),
		),
	)
	defer span.End()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

// Remove deletes the file at path.
func (ds *DiskStore) Remove(ctx context.Context, path string) error {
	_, span := tracer.Start(ctx, "disk.remove",
		trace.WithAttributes(
			attribute.String("path", path),
		),
	)
	defer span.End()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		span.RecordError(err)
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}
