// Package welcome handles the notification sent after registration.
package welcome

import (
	"context"
	"errors"

	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/queue"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingUserID = errors.New("missing userId")
	ErrUserNotFound  = errors.New("user not found")
)

// Users resolves user records.
type Users interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Task is the send_welcome_email job handler.
type Task struct {
	users Users
	log   logrus.FieldLogger
}

// NewTask creates a new welcome task
func NewTask(users Users, log logrus.FieldLogger) *Task {
	return &Task{users: users, log: log}
}

// Name returns the registry key for this task.
func (t *Task) Name() string { return queue.WelcomeTask }

// Handle greets the user named by job. Missing users are not retried.
func (t *Task) Handle(ctx context.Context, job models.WelcomeJob) error {
	if job.UserID == "" {
		return queue.Permanent(ErrMissingUserID)
	}

	user, err := t.users.FindByID(ctx, job.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return queue.Permanent(ErrUserNotFound)
	} else if err != nil {
		return err
	}

	t.log.WithField("user_id", user.ID).Infof("Welcome %s!", user.Email)
	return nil
}
