// Package sqlite stores credentials in a single SQLite file. It backs the local
// development server, where running Postgres is optional.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hongminglow/finflex-be/internal/models"
	"github.com/hongminglow/finflex-be/internal/storage"
)

var _ storage.CredentialStore = (*Store)(nil)

//go:embed migrations/*.sql
var migrations embed.FS

const userColumns = `id, username, email, phone, password_hash, friend_code, friends, created_at`

// Store implements credential persistence over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite file at path and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateUser inserts user, assigning an ID when it has none.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Friends == nil {
		user.Friends = []string{}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.CreatedAt = user.CreatedAt.UTC().Truncate(time.Millisecond)

	friends, err := json.Marshal(user.Friends)
	if err != nil {
		return models.User{}, fmt.Errorf("encode friends: %w", err)
	}

	const query = `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.Phone, user.PasswordHash,
		user.FriendCode, string(friends), user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isConstraintError(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// FindByID fetches a user by ID.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	return s.findOne(ctx, "id", id)
}

// FindByUsername fetches a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findOne(ctx, "username", username)
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, "email", email)
}

// FindByFriendCode fetches a user by invite code.
func (s *Store) FindByFriendCode(ctx context.Context, code string) (models.User, error) {
	return s.findOne(ctx, "friend_code", code)
}

// SaveOTP upserts the pending code for email.
func (s *Store) SaveOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	const query = `
		INSERT INTO pending_otps (email, code, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE
		SET code = excluded.code, expires_at = excluded.expires_at, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, query, email, code, expiresAt.UnixMilli(), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

// ConsumeOTP deletes the matching live code in a single statement.
func (s *Store) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (bool, error) {
	const query = `DELETE FROM pending_otps WHERE email = ? AND code = ? AND expires_at > ?`
	res, err := s.db.ExecContext(ctx, query, email, code, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return n == 1, nil
}

// PurgeExpiredOTPs removes codes that expired at or before now.
func (s *Store) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_otps WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired otps: %w", err)
	}
	return res.RowsAffected()
}

// findOne looks a user up by one of the fixed unique columns above.
func (s *Store) findOne(ctx context.Context, column, value string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`

	var (
		user      models.User
		friends   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &user.Username, &user.Email, &user.Phone,
		&user.PasswordHash, &user.FriendCode, &friends, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, storage.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user by %s: %w", column, err)
	}
	if err := json.Unmarshal([]byte(friends), &user.Friends); err != nil {
		return models.User{}, fmt.Errorf("decode friends: %w", err)
	}
	if user.Friends == nil {
		user.Friends = []string{}
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return user, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
