package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/finflex-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures persistence operations for user accounts. Username,
// email and friend code are unique; CreateUser returns ErrAlreadyExists on a
// violation and assigns the ID when it is empty.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByFriendCode(ctx context.Context, code string) (models.User, error)
}

// OTPStore holds at most one pending one-time code per email.
type OTPStore interface {
	// SaveOTP replaces any pending code for email.
	SaveOTP(ctx context.Context, email, code string, expiresAt time.Time) error
	// ConsumeOTP deletes the pending code and reports true only when code
	// matches and has not expired at now. A mismatch leaves the code in place.
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (bool, error)
}

// CredentialStore is everything the auth flow persists.
type CredentialStore interface {
	UserStore
	OTPStore
}

// ExpiredOTPPurger is implemented by stores that keep expired codes until swept.
type ExpiredOTPPurger interface {
	PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

type composite struct {
	UserStore
	OTPStore
}

// Compose serves users from one backend and pending codes from another.
func Compose(users UserStore, otps OTPStore) CredentialStore {
	return composite{UserStore: users, OTPStore: otps}
}
