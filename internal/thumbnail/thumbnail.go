// Package thumbnail generates scaled derivatives of uploaded images.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"

	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/queue"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var tracer = otel.Tracer("files-manager-thumbnail")

// MaxPixels bounds the decoded size of an original. Decoders allocate the
// whole raster from the header before reading pixel data.
const MaxPixels = 50_000_000

var (
	ErrMissingFileID = errors.New("missing fileId")
	ErrMissingUserID = errors.New("missing userId")
	ErrFileNotFound  = errors.New("file not found")
	ErrTooLarge      = errors.New("image too large")
)

// Repository resolves file records.
type Repository interface {
	FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error)
}

// BlobStore reads originals and writes derivatives.
type BlobStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// Task is the generate_thumbnails job handler.
type Task struct {
	repo      Repository
	blobs     BlobStore
	widths    []int
	maxPixels int
	log       logrus.FieldLogger
}

// NewTask creates a new thumbnail task
func NewTask(repo Repository, blobs BlobStore, log logrus.FieldLogger) *Task {
	return &Task{
		repo:      repo,
		blobs:     blobs,
		widths:    models.ThumbnailWidths,
		maxPixels: MaxPixels,
		log:       log,
	}
}

// Name returns the registry key for this task.
func (t *Task) Name() string { return queue.ThumbnailTask }

// Handle re-reads the file record, decodes the original and writes one
// derivative per width. The job succeeds when at least one derivative was
// written.
func (t *Task) Handle(ctx context.Context, job models.ThumbnailJob) error {
	if job.FileID == "" {
		return queue.Permanent(ErrMissingFileID)
	}
	if job.UserID == "" {
		return queue.Permanent(ErrMissingUserID)
	}

	ctx, span := tracer.Start(ctx, "thumbnail.generate",
		trace.WithAttributes(
			attribute.String("file_id", job.FileID),
			attribute.String("user_id", job.UserID),
		),
	)
	defer span.End()

	log := t.log.WithFields(logrus.Fields{"file_id": job.FileID, "user_id": job.UserID})

	file, err := t.repo.FindByIDAndOwner(ctx, job.FileID, job.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return queue.Permanent(ErrFileNotFound)
	} else if err != nil {
		span.RecordError(err)
		return err
	}
	if file.Type != models.TypeImage {
		return queue.Permanent(fmt.Errorf("file %s is a %s, not an image", file.ID, file.Type))
	}

	data, err := t.blobs.Read(ctx, file.LocalPath)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to read original: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to decode original header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return queue.Permanent(fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height))
	}
	if cfg.Width > t.maxPixels/cfg.Height {
		err := fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
		span.RecordError(err)
		return queue.Permanent(err)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to decode original: %w", err)
	}
	span.SetAttributes(attribute.String("format", format))

	var wg sync.WaitGroup
	errChan := make(chan error, len(t.widths))

	for _, width := range t.widths {
		wg.Add(1)
		go func(width int) {
			defer wg.Done()

			if err := t.derive(ctx, src, file.LocalPath, width); err != nil {
				log.WithError(err).WithField("width", width).Warn("thumbnail failed")
				errChan <- err
			}
		}(width)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	written := len(t.widths) - len(errs)
	span.SetAttributes(attribute.Int("written", written))
	if written == 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		return fmt.Errorf("no thumbnail written: %w", err)
	}

	log.WithField("written", written).Info("thumbnails generated")
	return nil
}

func (t *Task) derive(ctx context.Context, src image.Image, localPath string, width int) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Scale(src, width)); err != nil {
		return fmt.Errorf("failed to encode %dpx thumbnail: %w", width, err)
	}
	if err := t.blobs.Write(ctx, models.DerivativePath(localPath, width), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %dpx thumbnail: %w", width, err)
	}
	return nil
}

// Scale resizes src to width, keeping its aspect ratio.
func Scale(src image.Image, width int) image.Image {
	b := src.Bounds()
	height := 1
	if b.Dx() > 0 {
		height = max(1, b.Dy()*width/b.Dx())
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
