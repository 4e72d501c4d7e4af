// Package files implements the folder/file/image hierarchy: creation,
// listing, visibility and content serving.
package files

import (
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/queue"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/sirupsen/logrus"
)

// Page size limits for List.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// MaxNameLength is the longest file name, in characters, the files table
// accepts.
const MaxNameLength = 255

const octetStream = "application/octet-stream"

// Repository persists file records.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.File, error)
	FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error)
	FindPage(ctx context.Context, userID string, parentID models.ParentID, skip, limit int) ([]*models.File, error)
	InsertOne(ctx context.Context, file *models.File) error
	UpdateVisibility(ctx context.Context, id, userID string, isPublic bool) (*models.File, error)
}

// BlobStore holds file content.
type BlobStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, task string, payload any) (string, error)
}

// IdentityResolver maps a session token to the caller.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string, req auth.Requirement) (*models.Identity, error)
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name     string          `json:"name"`
	Type     models.FileType `json:"type"`
	Data     string          `json:"data"`
	ParentID models.ParentID `json:"parentId"`
	IsPublic bool            `json:"isPublic"`
}

// ListInput selects a page of files. Page is 0-based.
type ListInput struct {
	ParentID models.ParentID
	Page     int
	Limit    int
}

// Content is a file's bytes ready to be served.
type Content struct {
	File        *models.File
	Data        []byte
	ContentType string
}

// Service implements the file hierarchy.
type Service struct {
	repo     Repository
	blobs    BlobStore
	jobs     Enqueuer
	resolver IdentityResolver
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewService wires a Service.
func NewService(repo Repository, blobs BlobStore, jobs Enqueuer, resolver IdentityResolver, log logrus.FieldLogger) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		jobs:     jobs,
		resolver: resolver,
		log:      log,
		now:      time.Now,
	}
}

// Create validates in and stores a new folder, file or image owned by
// identity. For files and images the content is written before the record
// is inserted; images additionally get a thumbnail job once committed.
func (s *Service) Create(ctx context.Context, identity *models.Identity, in CreateInput) (*models.File, error) {
	if in.Name == "" {
		return nil, apperr.BadRequest("Missing name")
	}
	if utf8.RuneCountInString(in.Name) > MaxNameLength {
		return nil, apperr.BadRequest("Name too long")
	}
	if !in.Type.Valid() {
		return nil, apperr.BadRequest("Missing type")
	}
	if in.Type != models.TypeFolder && in.Data == "" {
		return nil, apperr.BadRequest("Missing data")
	}

	if !in.ParentID.IsRoot() {
		parent, err := s.repo.FindByIDAndOwner(ctx, in.ParentID.String(), identity.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.BadRequest("Parent not found")
		} else if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, apperr.BadRequest("Parent is not a folder")
		}
	}

	file := &models.File{
		ID:        uuid.New().String(),
		UserID:    identity.ID,
		Name:      in.Name,
		Type:      in.Type,
		ParentID:  models.ParentID(in.ParentID.String()),
		IsPublic:  in.IsPublic,
		CreatedAt: s.now().UTC(),
	}
	log := s.log.WithFields(logrus.Fields{
		"file_id": file.ID,
		"user_id": identity.ID,
		"type":    file.Type,
	})

	if file.IsFolder() {
		if err := s.repo.InsertOne(ctx, file); err != nil {
			return nil, apperr.Internal("File creation failed", err)
		}
		log.Info("folder created")
		return file, nil
	}

	data, err := decodeData(in.Data)
	if err != nil {
		return nil, apperr.BadRequest("Invalid data")
	}

	path, err := s.blobs.Save(ctx, data)
	if err != nil {
		return nil, apperr.Internal("File creation failed", err)
	}
	file.LocalPath = path

	if err := s.repo.InsertOne(ctx, file); err != nil {
		if rmErr := s.blobs.Remove(ctx, path); rmErr != nil {
			log.WithError(rmErr).Warn("failed to remove orphan blob")
		}
		return nil, apperr.Internal("File creation failed", err)
	}
	log.WithField("size_bytes", len(data)).Info("file created")

	if file.Type == models.TypeImage {
		job := models.ThumbnailJob{FileID: file.ID, UserID: file.UserID}
		if _, err := s.jobs.Enqueue(ctx, queue.ThumbnailQueue, queue.ThumbnailTask, job); err != nil {
			log.WithError(err).Error("failed to enqueue thumbnail job")
		}
	}

	return file, nil
}

// List returns one page of identity's files, oldest first. A root parent
// lists every file of the owner.
func (s *Service) List(ctx context.Context, identity *models.Identity, in ListInput) ([]*models.File, error) {
	if in.Page < 0 {
		return nil, apperr.BadRequest("Invalid page")
	}
	if in.Limit <= 0 {
		return nil, apperr.BadRequest("Invalid limit")
	}
	limit := min(in.Limit, MaxLimit)

	files, err := s.repo.FindPage(ctx, identity.ID, in.ParentID, in.Page*limit, limit)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []*models.File{}
	}
	return files, nil
}

// Get returns one of identity's files.
func (s *Service) Get(ctx context.Context, identity *models.Identity, id string) (*models.File, error) {
	file, err := s.repo.FindByIDAndOwner(ctx, id, identity.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound()
	} else if err != nil {
		return nil, err
	}
	return file, nil
}

// SetVisibility publishes or unpublishes one of identity's files.
func (s *Service) SetVisibility(ctx context.Context, identity *models.Identity, id string, isPublic bool) (*models.File, error) {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return nil, err
	}

	file, err := s.repo.UpdateVisibility(ctx, id, identity.ID, isPublic)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound()
	} else if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"file_id":   id,
		"user_id":   identity.ID,
		"is_public": isPublic,
	}).Info("visibility changed")
	return file, nil
}

// Content returns the bytes of file id, or of its derivative when size is
// non-zero. Private files are served only to their owner; everyone else gets
// the same NotFound as for a missing file.
func (s *Service) Content(ctx context.Context, token, id string, size int) (*Content, error) {
	file, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound()
	} else if err != nil {
		return nil, err
	}

	if !file.IsPublic {
		identity, err := s.resolver.Resolve(ctx, token, auth.Optional)
		if apperr.Is(err, apperr.KindUnauthorized) {
			return nil, apperr.NotFound()
		} else if err != nil {
			return nil, err
		}
		if identity == nil || !file.OwnedBy(identity.ID) {
			return nil, apperr.NotFound()
		}
	}

	if file.IsFolder() {
		return nil, apperr.BadRequest("A folder doesn't have content")
	}

	path := file.LocalPath
	if size != 0 {
		if !models.ValidThumbnailWidth(size) {
			return nil, apperr.BadRequest("Invalid size")
		}
		path = models.DerivativePath(path, size)
	}

	data, err := s.blobs.Read(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound()
	} else if err != nil {
		return nil, err
	}

	return &Content{
		File:        file,
		Data:        data,
		ContentType: contentType(file.Name, data),
	}, nil
}

// decodeData accepts padded and unpadded standard base64.
func decodeData(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func contentType(name string, data []byte) string {
	if m := mimetype.Detect(data); !m.Is(octetStream) {
		return m.String()
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return octetStream
}
