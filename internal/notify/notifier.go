// Package notify delivers one-time codes to users by email.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers a one-time code to an email address.
type Notifier interface {
	Send(ctx context.Context, email, code string) error
}

// LogNotifier writes codes to the log instead of sending them. It is used when
// no SMTP credentials are configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier returns a notifier that logs every code at warn level.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Send logs the code and never fails.
func (n *LogNotifier) Send(ctx context.Context, email, code string) error {
	n.log.WarnContext(ctx, "email delivery not configured; logging otp", "email", email, "otp", code)
	return nil
}

// Fallback hands the code to a second notifier when the first one fails.
type Fallback struct {
	primary   Notifier
	secondary Notifier
}

// NewFallback returns a notifier that tries primary, then secondary.
func NewFallback(primary, secondary Notifier) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Send reports the primary failure even when the secondary succeeds.
func (f *Fallback) Send(ctx context.Context, email, code string) error {
	err := f.primary.Send(ctx, email, code)
	if err == nil {
		return nil
	}
	if ferr := f.secondary.Send(ctx, email, code); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}
