package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"JWT_SECRET":   "  s3cret ",
		"DATABASE_URL": "postgres://localhost/finflex",
	})
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, "finflex-backend", cfg.JWTIssuer)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTPHost)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.False(t, cfg.EmailConfigured())
	assert.False(t, cfg.UseRedisOTP())
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := LoadFrom(map[string]string{"DATABASE_URL": "postgres://localhost/finflex"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	_, err = LoadFrom(map[string]string{"JWT_SECRET": "   ", "STORE_DRIVER": "memory"})
	require.Error(t, err)
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	_, err := LoadFrom(map[string]string{"JWT_SECRET": "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg, err := LoadFrom(map[string]string{"JWT_SECRET": "k", "STORE_DRIVER": "SQLite"})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "finflex.db", cfg.SQLitePath)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	_, err := LoadFrom(map[string]string{"JWT_SECRET": "k", "STORE_DRIVER": "mongo"})
	assert.Error(t, err)

	_, err = LoadFrom(map[string]string{"JWT_SECRET": "k", "STORE_DRIVER": "memory", "OTP_STORE": "memcached"})
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"JWT_SECRET":           "k",
		"STORE_DRIVER":         "memory",
		"OTP_STORE":            "redis",
		"PORT":                 "3000",
		"API_PREFIX":           "v1/",
		"JWT_TTL_MINUTES":      "60",
		"OTP_TTL":              "2m",
		"EMAIL_USER":           "noreply@finflex.test",
		"EMAIL_PASS":           "app-password",
		"CORS_ALLOWED_ORIGINS": "http://localhost:5173, https://finflex.app ,",
	})
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTPAddress())
	assert.Equal(t, "/v1", cfg.APIPrefix)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, 2*time.Minute, cfg.OTPTTL)
	assert.True(t, cfg.EmailConfigured())
	assert.True(t, cfg.UseRedisOTP())
	assert.Equal(t, []string{"http://localhost:5173", "https://finflex.app"}, cfg.CORSOrigins)
}

func TestLoadInvalidTTLFallsBack(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"JWT_SECRET": "k", "STORE_DRIVER": "memory", "JWT_TTL_MINUTES": "-5"})
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
}

func TestEmptyAPIPrefix(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"JWT_SECRET": "k", "STORE_DRIVER": "memory", "API_PREFIX": "/"})
	require.NoError(t, err)
	assert.Equal(t, "", cfg.APIPrefix)
}
