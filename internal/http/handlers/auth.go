package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/finflex-be/internal/apperr"
	"github.com/hongminglow/finflex-be/internal/http/respond"
	"github.com/hongminglow/finflex-be/internal/middleware"
	"github.com/hongminglow/finflex-be/internal/models"
	"github.com/hongminglow/finflex-be/internal/models/dto"
	"github.com/hongminglow/finflex-be/internal/service"
)

const (
	maxBodyBytes = 1 << 20
	otpSentMsg   = "OTP sent to your email"
)

// AuthService is the OTP flow the handlers drive.
type AuthService interface {
	RequestSignup(ctx context.Context, in service.SignupInput) (*service.OTPChallenge, error)
	RequestLogin(ctx context.Context, in service.LoginInput) (*service.OTPChallenge, error)
	VerifyOTP(ctx context.Context, in service.VerifyInput) (*service.AuthResult, error)
	Identify(ctx context.Context, authorization string) (*models.Profile, error)
}

// AuthHandler owns the signup, login, OTP verification and identity endpoints.
type AuthHandler struct {
	svc AuthService
	log *slog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc AuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

// Register attaches auth routes to r.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth-signup", h.handleSignup)
	r.Post("/auth-login", h.handleLogin)
	r.Post("/auth-verify-otp", h.handleVerifyOTP)
	r.With(middleware.RequireUser(h.svc, h.log)).Get("/auth-me", h.handleMe)
}

func (h *AuthHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	challenge, err := h.svc.RequestSignup(r.Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	respond.JSON(w, http.StatusOK, challengeResponse(challenge))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	challenge, err := h.svc.RequestLogin(r.Context(), service.LoginInput{
		EmailOrUsername: req.EmailOrUsername,
		Password:        req.Password,
	})
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	respond.JSON(w, http.StatusOK, challengeResponse(challenge))
}

func (h *AuthHandler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), service.VerifyInput{
		Email:    req.Email,
		Code:     req.OTP,
		IsSignup: req.IsSignup,
		Draft:    req.SignupData,
	})
	if err != nil {
		h.fail(w, r, "verify otp", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.VerifyOTPResponse{Success: true, Token: res.Token, User: res.User})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respond.JSON(w, http.StatusOK, dto.MeResponse{Success: true, User: user})
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	respond.Error(w, http.StatusBadRequest, "Invalid JSON payload")
	return false
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), op+" failed", "error", err)
	} else {
		h.log.InfoContext(r.Context(), op+" rejected", "kind", apperr.KindOf(err), "reason", apperr.PublicMessage(err))
	}
	respond.Error(w, status, apperr.PublicMessage(err))
}

func challengeResponse(c *service.OTPChallenge) dto.OTPChallengeResponse {
	return dto.OTPChallengeResponse{
		Success:     true,
		OTPRequired: c.OTPRequired,
		Email:       c.Email,
		Message:     otpSentMsg,
	}
}
