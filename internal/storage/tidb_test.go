package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientWithMock(t *testing.T) (*TiDBClient, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewTiDBClientFrom(db), mock
}

var fileRowColumns = []string{"id", "user_id", "name", "type", "parent_id", "is_public", "local_path", "created_at"}

func TestUserRepository_InsertOne(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	user := &models.User{ID: "u1", Email: "bob@dylan.com", PasswordHash: "digest", CreatedAt: ts}

	t.Run("ok", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WithArgs("u1", "bob@dylan.com", "digest", ts).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, client.Users().InsertOne(context.Background(), user))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		err := client.Users().InsertOne(context.Background(), user)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("other error", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(errors.New("boom"))

		err := client.Users().InsertOne(context.Background(), user)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicate)
	})
}

func TestUserRepository_FindByEmail(t *testing.T) {
	ts := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("u1", "bob@dylan.com", "digest", ts)
		mock.ExpectQuery(`SELECT .* FROM users WHERE email = \?`).
			WithArgs("bob@dylan.com").
			WillReturnRows(rows)

		user, err := client.Users().FindByEmail(context.Background(), "bob@dylan.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		assert.Equal(t, "digest", user.PasswordHash)
	})

	t.Run("missing", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectQuery(`SELECT .* FROM users WHERE email = \?`).
			WillReturnError(sql.ErrNoRows)

		_, err := client.Users().FindByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUserRepository_FindByID(t *testing.T) {
	client, mock := newClientWithMock(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

	_, err := client.Users().FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileRepository_InsertOne(t *testing.T) {
	ts := time.Now().UTC()

	tests := []struct {
		name      string
		file      *models.File
		localPath any
	}{
		{
			name:      "folder at root",
			file:      &models.File{ID: "f1", UserID: "u1", Name: "images", Type: models.TypeFolder, ParentID: "", CreatedAt: ts},
			localPath: sql.NullString{},
		},
		{
			name:      "file in folder",
			file:      &models.File{ID: "f2", UserID: "u1", Name: "a.txt", Type: models.TypeFile, ParentID: "f1", LocalPath: "/tmp/x", CreatedAt: ts},
			localPath: sql.NullString{String: "/tmp/x", Valid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newClientWithMock(t)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO files")).
				WithArgs(tt.file.ID, "u1", tt.file.Name, string(tt.file.Type), tt.file.ParentID.String(), false, tt.localPath, ts).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, client.Files().InsertOne(context.Background(), tt.file))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFileRepository_FindPage(t *testing.T) {
	ts := time.Now().UTC()

	t.Run("root lists every file of the user", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		rows := sqlmock.NewRows(fileRowColumns).
			AddRow("f1", "u1", "images", "folder", "0", false, nil, ts).
			AddRow("f2", "u1", "a.png", "image", "f1", true, "/tmp/a", ts)
		mock.ExpectQuery(`FROM files WHERE user_id = \? ORDER BY created_at ASC, id ASC LIMIT \? OFFSET \?`).
			WithArgs("u1", 20, 40).
			WillReturnRows(rows)

		files, err := client.Files().FindPage(context.Background(), "u1", models.RootID, 40, 20)
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.True(t, files[0].ParentID.IsRoot())
		assert.Equal(t, "", files[0].LocalPath)
		assert.Equal(t, models.TypeImage, files[1].Type)
		assert.Equal(t, "/tmp/a", files[1].LocalPath)
		assert.True(t, files[1].IsPublic)
	})

	t.Run("folder filters by parent", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectQuery(`FROM files WHERE user_id = \? AND parent_id = \? ORDER BY`).
			WithArgs("u1", "f1", 5, 0).
			WillReturnRows(sqlmock.NewRows(fileRowColumns))

		files, err := client.Files().FindPage(context.Background(), "u1", "f1", 0, 5)
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestFileRepository_UpdateVisibility(t *testing.T) {
	ts := time.Now().UTC()

	t.Run("ok", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE files SET is_public = ? WHERE id = ? AND user_id = ?")).
			WithArgs(true, "f1", "u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM files WHERE id = \? AND user_id = \?`).
			WithArgs("f1", "u1").
			WillReturnRows(sqlmock.NewRows(fileRowColumns).AddRow("f1", "u1", "a.txt", "file", "0", true, "/tmp/a", ts))
		mock.ExpectCommit()

		file, err := client.Files().UpdateVisibility(context.Background(), "f1", "u1", true)
		require.NoError(t, err)
		assert.True(t, file.IsPublic)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign file rolls back", func(t *testing.T) {
		client, mock := newClientWithMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE files")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM files WHERE id = \? AND user_id = \?`).
			WillReturnRows(sqlmock.NewRows(fileRowColumns))
		mock.ExpectRollback()

		_, err := client.Files().UpdateVisibility(context.Background(), "f1", "u2", true)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFileRepository_Count(t *testing.T) {
	client, mock := newClientWithMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM files")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := client.Files().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestTiDBClient_RunMigrations(t *testing.T) {
	client, _ := newClientWithMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, client.RunMigrations(context.Background()))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.ErrorContains(t, client.RunMigrations(context.Background()), "failed to run migrations")
}
