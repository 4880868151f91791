package dto

import "github.com/hongminglow/finflex-be/internal/models"

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

// SignupDraft is the signup form echoed back by the client with the OTP.
type SignupDraft struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Email      string       `json:"email"`
	OTP        string       `json:"otp"`
	IsSignup   bool         `json:"isSignup"`
	SignupData *SignupDraft `json:"signupData"`
}

type OTPChallengeResponse struct {
	Success     bool   `json:"success"`
	OTPRequired bool   `json:"otpRequired"`
	Email       string `json:"email"`
	Message     string `json:"message"`
}

type VerifyOTPResponse struct {
	Success bool           `json:"success"`
	Token   string         `json:"token"`
	User    models.Profile `json:"user"`
}

type MeResponse struct {
	Success bool           `json:"success"`
	User    models.Profile `json:"user"`
}
