// Package service holds the OTP-gated signup and login flow.
//
// A signup or login request validates credentials and issues a one-time code
// for the account email. VerifyOTP consumes that code exactly once and, for
// signups, creates the account from the draft the client echoes back. No user
// row exists until the code is confirmed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/hongminglow/finflex-be/internal/apperr"
	"github.com/hongminglow/finflex-be/internal/auth"
	"github.com/hongminglow/finflex-be/internal/models"
	"github.com/hongminglow/finflex-be/internal/models/dto"
	"github.com/hongminglow/finflex-be/internal/notify"
	"github.com/hongminglow/finflex-be/internal/storage"
)

// MaxFriendCodeAttempts bounds the search for an unused invite code.
const MaxFriendCodeAttempts = 50

const (
	msgAllFieldsRequired   = "All fields are required"
	msgInvalidEmail        = "Invalid email address"
	msgLoginFieldsRequired = "Email/Username and password are required"
	msgOTPFieldsRequired   = "OTP and email are required"
	msgSignupDataRequired  = "Signup data is incomplete"
	msgEmailInUse          = "Email already in use"
	msgUsernameTaken       = "Username already taken"
	msgInvalidCredentials  = "Invalid credentials"
	msgInvalidOTP          = "Invalid or expired OTP"
	msgUserNotFound        = "User not found"
	msgUnauthorized        = "Unauthorized"
	msgInvalidToken        = "Invalid or expired token"
	msgInternal            = "Internal server error"
)

// SignupInput is the first signup step.
type SignupInput struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// LoginInput is the first login step.
type LoginInput struct {
	EmailOrUsername string
	Password        string
}

// VerifyInput confirms a pending code. Draft is only read when IsSignup is set.
type VerifyInput struct {
	Email    string
	Code     string
	IsSignup bool
	Draft    *dto.SignupDraft
}

// OTPChallenge tells the client a code was issued for Email.
type OTPChallenge struct {
	OTPRequired bool
	Email       string
}

// AuthResult is returned once a code is confirmed.
type AuthResult struct {
	Token string
	User  models.Profile
}

// AuthService owns the two-step signup/login protocol.
type AuthService struct {
	store    storage.CredentialStore
	tokens   *auth.TokenManager
	notifier notify.Notifier
	codes    auth.CodeGenerator
	otpTTL   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithCodeGenerator replaces the crypto/rand code generator.
func WithCodeGenerator(codes auth.CodeGenerator) Option {
	return func(s *AuthService) { s.codes = codes }
}

// WithClock replaces time.Now for expiry calculations.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService wires the flow to its collaborators. otpTTL is how long an
// issued code stays valid.
func NewAuthService(store storage.CredentialStore, tokens *auth.TokenManager, notifier notify.Notifier, otpTTL time.Duration, log *slog.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		codes:    auth.RandomCodes{},
		otpTTL:   otpTTL,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestSignup checks that email and username are free and issues a code.
// The password is not stored until VerifyOTP.
func (s *AuthService) RequestSignup(ctx context.Context, in SignupInput) (*OTPChallenge, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if username == "" || email == "" || phone == "" || in.Password == "" {
		return nil, apperr.Validation(msgAllFieldsRequired)
	}
	if !validEmail(email) {
		return nil, apperr.Validation(msgInvalidEmail)
	}

	taken, err := s.exists(ctx, s.store.FindByEmail, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict(msgEmailInUse)
	}
	taken, err = s.exists(ctx, s.store.FindByUsername, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict(msgUsernameTaken)
	}

	if err := s.issueOTP(ctx, email); err != nil {
		return nil, err
	}
	return &OTPChallenge{OTPRequired: true, Email: email}, nil
}

// RequestLogin checks credentials and issues a code to the account email.
// Unknown users and wrong passwords fail identically.
func (s *AuthService) RequestLogin(ctx context.Context, in LoginInput) (*OTPChallenge, error) {
	identifier := strings.TrimSpace(in.EmailOrUsername)
	if identifier == "" || in.Password == "" {
		return nil, apperr.Validation(msgLoginFieldsRequired)
	}

	user, err := s.resolveLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.InfoContext(ctx, "login rejected: unknown account")
			return nil, apperr.Auth(msgInvalidCredentials)
		}
		return nil, apperr.Internal(msgInternal, fmt.Errorf("resolve login: %w", err))
	}
	if !auth.VerifyPassword(in.Password, user.PasswordHash) {
		s.log.InfoContext(ctx, "login rejected: password mismatch", "user_id", user.ID)
		return nil, apperr.Auth(msgInvalidCredentials)
	}

	if err := s.issueOTP(ctx, user.Email); err != nil {
		return nil, err
	}
	return &OTPChallenge{OTPRequired: true, Email: user.Email}, nil
}

// VerifyOTP consumes the pending code for the email and returns a token.
// With IsSignup and a draft it creates the account first; otherwise it logs
// in the existing account.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)
	code := strings.TrimSpace(in.Code)
	if email == "" || code == "" {
		return nil, apperr.Validation(msgOTPFieldsRequired)
	}
	signup := in.IsSignup && in.Draft != nil
	if signup && !completeDraft(in.Draft) {
		return nil, apperr.Validation(msgSignupDataRequired)
	}

	ok, err := s.store.ConsumeOTP(ctx, email, code, s.now())
	if err != nil {
		return nil, apperr.Internal(msgInternal, fmt.Errorf("consume otp: %w", err))
	}
	if !ok {
		return nil, apperr.Auth(msgInvalidOTP)
	}

	var user models.User
	if signup {
		user, err = s.createAccount(ctx, email, in.Draft)
	} else {
		user, err = s.store.FindByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Internal(msgInternal, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, apperr.Internal(msgInternal, err)
	}
	return &AuthResult{Token: token, User: user.Profile()}, nil
}

// Identify resolves an Authorization header value to the caller's profile.
func (s *AuthService) Identify(ctx context.Context, authorization string) (*models.Profile, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, apperr.Auth(msgUnauthorized)
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.WrapAuth(msgInvalidToken, err)
	}
	return s.Profile(ctx, userID)
}

// Profile loads the public profile for userID.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, apperr.Internal(msgInternal, fmt.Errorf("find user: %w", err))
	}
	p := user.Profile()
	return &p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// issueOTP stores a fresh code for email, superseding any older one, then
// tries to deliver it. Delivery failures are logged and otherwise ignored.
func (s *AuthService) issueOTP(ctx context.Context, email string) error {
	code, err := s.codes.OneTimeCode()
	if err != nil {
		return apperr.Internal(msgInternal, err)
	}
	if err := s.store.SaveOTP(ctx, email, code, s.now().Add(s.otpTTL)); err != nil {
		return apperr.Internal(msgInternal, fmt.Errorf("save otp: %w", err))
	}
	if err := s.notifier.Send(ctx, email, code); err != nil {
		s.log.ErrorContext(ctx, "otp delivery failed", "email", email, "error", err)
	}
	return nil
}

func (s *AuthService) createAccount(ctx context.Context, email string, draft *dto.SignupDraft) (models.User, error) {
	hash, err := auth.HashPassword(draft.Password)
	if err != nil {
		return models.User{}, apperr.Internal(msgInternal, err)
	}
	friendCode, err := s.allocateFriendCode(ctx)
	if err != nil {
		return models.User{}, err
	}

	created, err := s.store.CreateUser(ctx, models.User{
		Username:     strings.TrimSpace(draft.Username),
		Email:        email,
		Phone:        strings.TrimSpace(draft.Phone),
		PasswordHash: hash,
		FriendCode:   friendCode,
		Friends:      []string{},
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.User{}, apperr.Conflict("Account already exists")
		}
		return models.User{}, apperr.Internal(msgInternal, fmt.Errorf("create user: %w", err))
	}
	s.log.InfoContext(ctx, "account created", "user_id", created.ID)
	return created, nil
}

// allocateFriendCode draws invite codes until one is unused.
func (s *AuthService) allocateFriendCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < MaxFriendCodeAttempts; attempt++ {
		code, err := s.codes.InviteCode()
		if err != nil {
			return "", apperr.Internal(msgInternal, err)
		}
		taken, err := s.exists(ctx, s.store.FindByFriendCode, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", apperr.Internal(msgInternal, fmt.Errorf("no free friend code after %d attempts", MaxFriendCodeAttempts))
}

func (s *AuthService) resolveLogin(ctx context.Context, identifier string) (models.User, error) {
	user, err := s.store.FindByEmail(ctx, identifier)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return user, err
	}
	return s.store.FindByUsername(ctx, identifier)
}

func (s *AuthService) exists(ctx context.Context, find func(context.Context, string) (models.User, error), key string) (bool, error) {
	_, err := find(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, apperr.Internal(msgInternal, fmt.Errorf("lookup: %w", err))
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func completeDraft(d *dto.SignupDraft) bool {
	return strings.TrimSpace(d.Username) != "" && strings.TrimSpace(d.Phone) != "" && d.Password != ""
}
