package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	OTPStoreRedis  = "redis"

	defaultTokenTTL = 7 * 24 * time.Hour
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	APIPrefix string `env:"API_PREFIX" envDefault:"/api"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"finflex.db"`
	OTPStore    string `env:"OTP_STORE"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"finflex-backend"`
	JWTTTLMinutes int           `env:"JWT_TTL_MINUTES" envDefault:"10080"`
	JWTTTL        time.Duration `env:"-"`

	OTPTTL           time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPSweepInterval time.Duration `env:"OTP_SWEEP_INTERVAL" envDefault:"10m"`

	EmailUser     string        `env:"EMAIL_USER"`
	EmailPass     string        `env:"EMAIL_PASS"`
	SMTPHost      string        `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort      int           `env:"SMTP_PORT" envDefault:"587"`
	EmailFromName string        `env:"EMAIL_FROM_NAME" envDefault:"FinFlex"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`

	RawCORSOrigins string   `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	CORSOrigins    []string `env:"-"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from the process environment and validates it.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads configuration from environ, or the process environment when
// environ is nil.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.OTPStore = strings.ToLower(strings.TrimSpace(cfg.OTPStore))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)
	cfg.CORSOrigins = parseCSV(cfg.RawCORSOrigins)

	if cfg.JWTTTLMinutes > 0 {
		cfg.JWTTTL = time.Duration(cfg.JWTTTLMinutes) * time.Minute
	} else {
		cfg.JWTTTL = defaultTokenTTL
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return Config{}, errors.New("SQLITE_PATH is required")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.OTPStore != "" && cfg.OTPStore != OTPStoreRedis && cfg.OTPStore != cfg.StoreDriver {
		return Config{}, fmt.Errorf("unknown OTP_STORE %q", cfg.OTPStore)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// EmailConfigured reports whether SMTP credentials are present.
func (c Config) EmailConfigured() bool {
	return c.EmailUser != "" && c.EmailPass != ""
}

// UseRedisOTP reports whether pending codes live in Redis.
func (c Config) UseRedisOTP() bool {
	return c.OTPStore == OTPStoreRedis
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
