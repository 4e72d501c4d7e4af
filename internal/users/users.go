// Package users handles account registration.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/credentials"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/queue"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/sirupsen/logrus"
)

// Repository persists users.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	InsertOne(ctx context.Context, user *models.User) error
}

// Hasher produces password digests.
type Hasher interface {
	Hash(password string) (string, error)
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, task string, payload any) (string, error)
}

// Service registers users.
type Service struct {
	repo   Repository
	hasher Hasher
	jobs   Enqueuer
	log    logrus.FieldLogger
}

// NewService creates a new registration service.
func NewService(repo Repository, hasher Hasher, jobs Enqueuer, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, hasher: hasher, jobs: jobs, log: log}
}

// Register creates an account and schedules its welcome notification.
func (s *Service) Register(ctx context.Context, email, password string) (*models.Identity, error) {
	if email == "" {
		return nil, apperr.BadRequest("Missing email")
	}
	if password == "" {
		return nil, apperr.BadRequest("Missing password")
	}
	if len(password) > credentials.MaxPasswordBytes {
		return nil, apperr.BadRequest("Password too long")
	}

	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperr.Conflict("Already exist")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	digest, err := s.hasher.Hash(password)
	if errors.Is(err, credentials.ErrPasswordTooLong) {
		return nil, apperr.BadRequest("Password too long")
	} else if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: digest,
		CreatedAt:    time.Now().UTC(),
	}

	// The unique index still catches a concurrent registration of the same
	// email that passed the lookup above.
	if err := s.repo.InsertOne(ctx, user); errors.Is(err, storage.ErrDuplicate) {
		return nil, apperr.Conflict("Already exist")
	} else if err != nil {
		return nil, err
	}

	log := s.log.WithField("user_id", user.ID)
	log.Info("user registered")

	if _, err := s.jobs.Enqueue(ctx, queue.EmailQueue, queue.WelcomeTask, models.WelcomeJob{UserID: user.ID}); err != nil {
		log.WithError(err).Error("failed to enqueue welcome job")
	}

	return user.Identity(), nil
}

// Me returns the caller's public profile.
func (s *Service) Me(identity *models.Identity) *models.Identity {
	return &models.Identity{ID: identity.ID, Email: identity.Email}
}
