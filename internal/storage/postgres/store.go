package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hongminglow/finflex-be/internal/models"
	"github.com/hongminglow/finflex-be/internal/storage"
)

// Ensure Store satisfies the storage.CredentialStore interface at compile time.
var _ storage.CredentialStore = (*Store)(nil)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

const userColumns = `id::text, username, email, phone, password_hash, friend_code, friends, created_at`

// Store provides Postgres-backed persistence for users and pending codes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and applies the embedded migrations.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row; the database assigns the ID.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (username, email, phone, password_hash, friend_code, friends)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	friends := user.Friends
	if friends == nil {
		friends = []string{}
	}
	row := s.pool.QueryRow(ctx, query, user.Username, user.Email, user.Phone, user.PasswordHash, user.FriendCode, friends)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// FindByID fetches a user by ID. Malformed IDs are reported as not found.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, storage.ErrNotFound
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

// FindByUsername fetches a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(s.pool.QueryRow(ctx, query, username))
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.pool.QueryRow(ctx, query, email))
}

// FindByFriendCode fetches a user by invite code.
func (s *Store) FindByFriendCode(ctx context.Context, code string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE friend_code = $1`
	return scanUser(s.pool.QueryRow(ctx, query, code))
}

// SaveOTP upserts the pending code for email.
func (s *Store) SaveOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	const query = `
		INSERT INTO pending_otps (email, code, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, email, code, expiresAt); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

// ConsumeOTP deletes the matching live code in a single statement.
func (s *Store) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (bool, error) {
	const query = `
		DELETE FROM pending_otps
		WHERE email = $1 AND code = $2 AND expires_at > $3
		RETURNING email`
	var consumed string
	err := s.pool.QueryRow(ctx, query, email, code, now).Scan(&consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return true, nil
}

// PurgeExpiredOTPs removes codes that expired before now.
func (s *Store) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_otps WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired otps: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Phone, &user.PasswordHash, &user.FriendCode, &user.Friends, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	if user.Friends == nil {
		user.Friends = []string{}
	}
	return user, nil
}
