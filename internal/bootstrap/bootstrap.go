// Package bootstrap opens the stores shared by the server and the worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/sirupsen/logrus"
)

// Stores are the connected backends.
type Stores struct {
	TiDB  *storage.TiDBClient
	Redis *storage.RedisClient
	Blobs storage.BlobStore
}

// Open connects to TiDB, Redis and the configured blob backend, applying
// migrations when enabled.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Stores, error) {
	log.Info("connecting to TiDB")
	tidb, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TiDB client: %w", err)
	}

	if cfg.RunMigrations {
		log.Info("running migrations")
		if err := tidb.RunMigrations(ctx); err != nil {
			_ = tidb.Close()
			return nil, err
		}
	}

	log.Info("connecting to Redis")
	redisClient, err := storage.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = tidb.Close()
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}

	blobs, err := OpenBlobStore(ctx, cfg, log)
	if err != nil {
		_ = tidb.Close()
		_ = redisClient.Close()
		return nil, err
	}

	return &Stores{TiDB: tidb, Redis: redisClient, Blobs: blobs}, nil
}

// OpenBlobStore returns the blob backend selected by BLOB_BACKEND.
func OpenBlobStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendMinIO:
		log.WithField("bucket", cfg.MinIOBucketName).Info("using MinIO blob store")
		store, err := storage.NewMinIOStore(ctx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOPrefix,
			cfg.MinIOUseSSL,
			log,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO store: %w", err)
		}
		return store, nil
	case config.BlobBackendDisk:
		log.WithField("folder", cfg.FolderPath).Info("using disk blob store")
		return storage.NewDiskStore(cfg.FolderPath), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// Close releases every connection.
func (s *Stores) Close() error {
	return errors.Join(s.Redis.Close(), s.TiDB.Close())
}
