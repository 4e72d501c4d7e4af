package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/storage/migrations"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("files-manager-storage")

const mysqlDuplicateEntry = 1062

// DBTX is the subset of database/sql used by the repositories.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TiDBClient wraps TiDB operations with tracing
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectAttempts), ctx)
	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, b); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &TiDBClient{db: db}, nil
}

// NewTiDBClientFrom wraps an already opened database handle.
func NewTiDBClientFrom(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// Ping checks connectivity.
func (tc *TiDBClient) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tidb.ping")
	defer span.End()

	if err := tc.db.PingContext(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func (tc *TiDBClient) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, tc.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Users returns the users repository.
func (tc *TiDBClient) Users() *UserRepository {
	return &UserRepository{db: tc.db}
}

// Files returns the files repository.
func (tc *TiDBClient) Files() *FileRepository {
	return &FileRepository{db: tc.db}
}

// UserRepository stores users.
type UserRepository struct {
	db DBTX
}

// InsertOne inserts a user. A taken email yields ErrDuplicate.
func (r *UserRepository) InsertOne(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "tidb.insert_user",
		trace.WithAttributes(
			attribute.String("user_id", user.ID),
		),
	)
	defer span.End()

	query := `INSERT INTO users (id, email, password_hash, created_at)
			  VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		span.RecordError(err)
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID returns the user with id, or ErrNotFound.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_user_by_id",
		trace.WithAttributes(
			attribute.String("user_id", id),
		),
	)
	defer span.End()

	query := `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`
	return r.scanOne(ctx, span, query, id)
}

// FindByEmail returns the user with email, or ErrNotFound.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_user_by_email")
	defer span.End()

	query := `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`
	return r.scanOne(ctx, span, query, email)
}

func (r *UserRepository) scanOne(ctx context.Context, span trace.Span, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "tidb.count_users")
	defer span.End()

	return count(ctx, span, r.db, `SELECT COUNT(*) FROM users`)
}

// FileRepository stores the file hierarchy.
type FileRepository struct {
	db DBTX
}

const fileColumns = `id, user_id, name, type, parent_id, is_public, local_path, created_at`

// InsertOne inserts a file record.
func (r *FileRepository) InsertOne(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "tidb.insert_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("file_type", string(file.Type)),
		),
	)
	defer span.End()

	query := `INSERT INTO files (` + fileColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var localPath sql.NullString
	if file.LocalPath != "" {
		localPath = sql.NullString{String: file.LocalPath, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.UserID,
		file.Name,
		string(file.Type),
		file.ParentID.String(),
		file.IsPublic,
		localPath,
		file.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// FindByID returns the file with id regardless of owner, or ErrNotFound.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_file_by_id",
		trace.WithAttributes(
			attribute.String("file_id", id),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`
	return scanFile(span, r.db.QueryRowContext(ctx, query, id))
}

// FindByIDAndOwner returns the file with id owned by userID, or ErrNotFound.
func (r *FileRepository) FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_file_by_owner",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ? AND user_id = ?`
	return scanFile(span, r.db.QueryRowContext(ctx, query, id, userID))
}

// FindPage returns up to limit files of userID after skipping skip, in
// creation order. A root parentID does not filter by parent.
func (r *FileRepository) FindPage(ctx context.Context, userID string, parentID models.ParentID, skip, limit int) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_file_page",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("parent_id", parentID.String()),
			attribute.Int("skip", skip),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE user_id = ?`
	args := []any{userID}
	if !parentID.IsRoot() {
		query += ` AND parent_id = ?`
		args = append(args, parentID.String())
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.File, 0, limit)
	for rows.Next() {
		file, err := scanFileRow(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// UpdateVisibility sets is_public on the file id owned by userID and returns
// the updated record, or ErrNotFound.
func (r *FileRepository) UpdateVisibility(ctx context.Context, id, userID string, isPublic bool) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.update_visibility",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.Bool("is_public", isPublic),
		),
	)
	defer span.End()

	db, ok := r.db.(*sql.DB)
	if !ok {
		return r.updateVisibility(ctx, span, r.db, id, userID, isPublic)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	file, err := r.updateVisibility(ctx, span, tx, id, userID, isPublic)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit visibility update: %w", err)
	}
	return file, nil
}

func (r *FileRepository) updateVisibility(ctx context.Context, span trace.Span, db DBTX, id, userID string, isPublic bool) (*models.File, error) {
	query := `UPDATE files SET is_public = ? WHERE id = ? AND user_id = ?`
	if _, err := db.ExecContext(ctx, query, isPublic, id, userID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update file: %w", err)
	}

	query = `SELECT ` + fileColumns + ` FROM files WHERE id = ? AND user_id = ?`
	return scanFile(span, db.QueryRowContext(ctx, query, id, userID))
}

// Count returns the number of files.
func (r *FileRepository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "tidb.count_files")
	defer span.End()

	return count(ctx, span, r.db, `SELECT COUNT(*) FROM files`)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRow(row rowScanner) (*models.File, error) {
	var (
		file      models.File
		fileType  string
		parentID  string
		localPath sql.NullString
	)
	if err := row.Scan(
		&file.ID,
		&file.UserID,
		&file.Name,
		&fileType,
		&parentID,
		&file.IsPublic,
		&localPath,
		&file.CreatedAt,
	); err != nil {
		return nil, err
	}

	file.Type = models.FileType(fileType)
	file.ParentID = models.ParentID(parentID)
	file.LocalPath = localPath.String
	return &file, nil
}

func scanFile(span trace.Span, row *sql.Row) (*models.File, error) {
	file, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return file, nil
}

func count(ctx context.Context, span trace.Span, db DBTX, query string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
