// Package redis keeps pending one-time codes in Redis so they expire with the
// key TTL instead of a sweep.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hongminglow/finflex-be/internal/storage"
)

var _ storage.OTPStore = (*OTPStore)(nil)

// KeyPrefix namespaces pending codes.
const KeyPrefix = "otp:"

// consumeScript deletes the key only when it holds the submitted code.
var consumeScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OTPStore implements storage.OTPStore on a Redis client.
type OTPStore struct {
	client *goredis.Client
}

// Connect parses redisURL, pings the server and returns a store.
func Connect(ctx context.Context, redisURL string) (*OTPStore, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewOTPStore(client), nil
}

// NewOTPStore wraps an existing client.
func NewOTPStore(client *goredis.Client) *OTPStore {
	return &OTPStore{client: client}
}

// Close closes the underlying client.
func (s *OTPStore) Close() error {
	return s.client.Close()
}

// SaveOTP overwrites the pending code for email; Redis expires it at expiresAt.
func (s *OTPStore) SaveOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.client.Del(ctx, KeyPrefix+email).Err()
	}
	if err := s.client.Set(ctx, KeyPrefix+email, code, ttl).Err(); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

// ConsumeOTP atomically deletes the key when it holds code. Expiry is enforced
// by the key TTL, so now is not consulted.
func (s *OTPStore) ConsumeOTP(ctx context.Context, email, code string, _ time.Time) (bool, error) {
	deleted, err := consumeScript.Run(ctx, s.client, []string{KeyPrefix + email}, code).Int()
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return deleted == 1, nil
}
