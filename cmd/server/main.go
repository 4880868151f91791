package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hongminglow/finflex-be/internal/auth"
	"github.com/hongminglow/finflex-be/internal/config"
	"github.com/hongminglow/finflex-be/internal/logging"
	"github.com/hongminglow/finflex-be/internal/notify"
	"github.com/hongminglow/finflex-be/internal/server"
	"github.com/hongminglow/finflex-be/internal/service"
	"github.com/hongminglow/finflex-be/internal/storage"
	"github.com/hongminglow/finflex-be/internal/storage/memory"
	"github.com/hongminglow/finflex-be/internal/storage/postgres"
	otpredis "github.com/hongminglow/finflex-be/internal/storage/redis"
	"github.com/hongminglow/finflex-be/internal/storage/sqlite"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, purger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("init storage", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	svc := service.NewAuthService(store, tokens, newNotifier(cfg, logger), cfg.OTPTTL, logger)

	if purger != nil {
		go service.RunOTPJanitor(ctx, purger, cfg.OTPSweepInterval, logger)
	}

	srv := server.New(cfg, svc, logger)
	go func() {
		logger.Info("FinFlex auth backend listening",
			"addr", cfg.HTTPAddress(),
			"store", cfg.StoreDriver,
			"redis_otp", cfg.UseRedisOTP(),
			"email", cfg.EmailConfigured(),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("graceful shutdown error", "error", err)
	}
}

// openStore builds the credential store for cfg. The purger is nil when
// pending codes expire on their own.
func openStore(ctx context.Context, cfg config.Config) (storage.CredentialStore, storage.ExpiredOTPPurger, func(), error) {
	var (
		users   storage.CredentialStore
		purger  storage.ExpiredOTPPurger
		closers []func()
	)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		users, purger = pg, pg
		closers = append(closers, pg.Close)
	case config.DriverSQLite:
		lite, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		users, purger = lite, lite
		closers = append(closers, func() { _ = lite.Close() })
	default:
		mem := memory.New()
		users, purger = mem, mem
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if !cfg.UseRedisOTP() {
		return users, purger, closeAll, nil
	}

	otps, err := otpredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		closeAll()
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	closers = append(closers, func() { _ = otps.Close() })
	return storage.Compose(users, otps), nil, closeAll, nil
}

func newNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	fallback := notify.NewLogNotifier(logger)
	if !cfg.EmailConfigured() {
		return fallback
	}
	smtp := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.EmailUser,
		Password:  cfg.EmailPass,
		FromName:  cfg.EmailFromName,
		ExpiresIn: cfg.OTPTTL,
		Timeout:   cfg.EmailTimeout,
	})
	return notify.NewFallback(smtp, fallback)
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
	_ = godotenv.Load(".env.local")
}
