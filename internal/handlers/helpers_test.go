package handlers

import (
	"context"
	"sort"
	"sync"

	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/storage"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memUsers) InsertOne(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

type memFiles struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string]*models.File)}
}

func (m *memFiles) FindByID(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memFiles) FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error) {
	f, err := m.FindByID(ctx, id)
	if err != nil || f.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return f, nil
}

func (m *memFiles) FindPage(_ context.Context, userID string, parentID models.ParentID, skip, limit int) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.File
	for _, f := range m.files {
		if f.UserID == userID && (parentID.IsRoot() || f.ParentID.String() == parentID.String()) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if skip >= len(out) {
		return nil, nil
	}
	return out[skip:min(skip+limit, len(out))], nil
}

func (m *memFiles) InsertOne(_ context.Context, file *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *file
	m.files[file.ID] = &cp
	return nil
}

func (m *memFiles) UpdateVisibility(_ context.Context, id, userID string, isPublic bool) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.UserID != userID {
		return nil, storage.ErrNotFound
	}
	f.IsPublic = isPublic
	cp := *f
	return &cp, nil
}

func (m *memFiles) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files)), nil
}
