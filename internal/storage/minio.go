package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinIOStore keeps blobs as objects of a single bucket. Paths are object keys
// under an optional prefix.
type MinIOStore struct {
	client     *minio.Client
	bucketName string
	prefix     string
}

// NewMinIOStore connects to MinIO and makes sure the bucket exists.
func NewMinIOStore(ctx context.Context, endpoint, accessKey, secretKey, bucketName, prefix string, useSSL bool, log logrus.FieldLogger) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ms := &MinIOStore{
		client:     client,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.WithField("bucket", bucketName).Info("creating bucket")
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return ms, nil
}

// Ping checks that the bucket is reachable.
func (ms *MinIOStore) Ping(ctx context.Context) error {
	if _, err := ms.client.BucketExists(ctx, ms.bucketName); err != nil {
		return fmt.Errorf("failed to reach MinIO: %w", err)
	}
	return nil
}

// Save uploads data under a random UUID key.
func (ms *MinIOStore) Save(ctx context.Context, data []byte) (string, error) {
	key := uuid.New().String()
	if ms.prefix != "" {
		key = ms.prefix + "/" + key
	}
	if err := ms.Write(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Write uploads data at key with tracing
func (ms *MinIOStore) Write(ctx context.Context, key string, data []byte) error {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	reader := bytes.NewReader(data)
	_, err := ms.client.PutObject(ctx, ms.bucketName, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// Read downloads the object at key with tracing
func (ms *MinIOStore) Read(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	object, err := ms.client.GetObject(ctx, ms.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, ms.mapError(err, "failed to get object")
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		return nil, ms.mapError(err, "failed to read object data")
	}

	span.SetAttributes(
		attribute.Int("size_bytes", len(data)),
		attribute.Bool("download_success", true),
	)
	return data, nil
}

// Remove deletes the object at key
func (ms *MinIOStore) Remove(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.remove_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	err := ms.client.RemoveObject(ctx, ms.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

func (ms *MinIOStore) mapError(err error, msg string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
