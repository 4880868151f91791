package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hongminglow/finflex-be/internal/storage"
)

// DefaultSweepInterval is used when RunOTPJanitor gets a non-positive interval.
const DefaultSweepInterval = 10 * time.Minute

// RunOTPJanitor deletes expired pending codes once immediately and then every
// interval until ctx is done. Expired codes are already unusable; this only
// keeps the table from growing.
func RunOTPJanitor(ctx context.Context, purger storage.ExpiredOTPPurger, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		n, err := purger.PurgeExpiredOTPs(ctx, time.Now())
		if err != nil {
			if ctx.Err() == nil {
				log.WarnContext(ctx, "purge expired otps", "error", err)
			}
			return
		}
		if n > 0 {
			log.DebugContext(ctx, "purged expired otps", "count", n)
		}
	}

	sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
