package bootstrap

import (
	"context"
	"testing"

	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBlobStore_Disk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenBlobStore(context.Background(), &config.Config{
		BlobBackend: config.BlobBackendDisk,
		FolderPath:  dir,
	}, logging.Discard())
	require.NoError(t, err)

	disk, ok := store.(*storage.DiskStore)
	require.True(t, ok)
	assert.Equal(t, dir, disk.Root())
}

func TestOpenBlobStore_Unknown(t *testing.T) {
	t.Parallel()

	_, err := OpenBlobStore(context.Background(), &config.Config{BlobBackend: "tape"}, logging.Discard())
	assert.ErrorContains(t, err, "unknown blob backend")
}
