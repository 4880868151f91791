package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hongminglow/finflex-be/internal/apperr"
	"github.com/hongminglow/finflex-be/internal/http/respond"
	"github.com/hongminglow/finflex-be/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// Identifier resolves an Authorization header to a profile.
type Identifier interface {
	Identify(ctx context.Context, authorization string) (*models.Profile, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// caller's profile in the request context.
func RequireUser(id Identifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, err := id.Identify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status := apperr.HTTPStatus(err)
				if status >= http.StatusInternalServerError {
					log.ErrorContext(r.Context(), "identify caller", "error", err)
				} else {
					log.DebugContext(r.Context(), "identify caller rejected", "error", err)
				}
				respond.Error(w, status, apperr.PublicMessage(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), *profile)))
		})
	}
}

// WithUser returns a copy of ctx carrying profile.
func WithUser(ctx context.Context, profile models.Profile) context.Context {
	return context.WithValue(ctx, userKey, profile)
}

// UserFrom returns the profile stored by RequireUser.
func UserFrom(ctx context.Context) (models.Profile, bool) {
	p, ok := ctx.Value(userKey).(models.Profile)
	return p, ok
}
