package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hongminglow/finflex-be/internal/config"
	"github.com/hongminglow/finflex-be/internal/http/handlers"
	"github.com/hongminglow/finflex-be/internal/http/respond"
	"github.com/hongminglow/finflex-be/internal/middleware"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, svc handlers.AuthService, log *slog.Logger) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewRouter(cfg, svc, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// NewRouter builds the HTTP handler. Routes are served at the root and again
// under cfg.APIPrefix when one is set.
func NewRouter(cfg config.Config, svc handlers.AuthService, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recover(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.NotFound(endpointNotFound)
	r.MethodNotAllowed(endpointNotFound)

	health := handlers.NewHealthHandler(time.Now())
	authHandler := handlers.NewAuthHandler(svc, log)
	routes := func(r chi.Router) {
		health.Register(r)
		authHandler.Register(r)
	}

	routes(r)
	if cfg.APIPrefix != "" {
		r.Route(cfg.APIPrefix, routes)
	}
	return r
}

func endpointNotFound(w http.ResponseWriter, _ *http.Request) {
	respond.Error(w, http.StatusNotFound, "Endpoint not found")
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
