package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/hongminglow/finflex-be/internal/models/dto"
	"github.com/hongminglow/finflex-be/internal/storage/postgres"
)

// TestAuthIntegration runs signup, verification, login and /auth-me against a live Postgres.
func TestAuthIntegration(t *testing.T) {
	if os.Getenv("RUN_AUTH_INTEGRATION") != "true" {
		t.Skip("set RUN_AUTH_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURL := mustGetEnv(t, "DATABASE_URL")

	ctx := context.Background()
	store, err := postgres.NewStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	defer store.Close()

	mail := newInbox()
	ts := newTestServer(t, store, mail)

	username := fmt.Sprintf("apitest_%d", time.Now().UnixNano())
	email := fmt.Sprintf("%s@example.com", username)
	phone := fmt.Sprintf("+1555%07d", time.Now().UnixNano()%10_000_000)
	password := fmt.Sprintf("Pass!%d", time.Now().UnixNano())

	resp, _ := postJSON(t, ts.URL+"/auth-signup", dto.SignupRequest{
		Username: username, Email: email, Phone: phone, Password: password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}

	resp, body := postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{
		Email:      email,
		OTP:        mail.code(email),
		IsSignup:   true,
		SignupData: &dto.SignupDraft{Username: username, Phone: phone, Password: password},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify signup status = %d: %v", resp.StatusCode, body)
	}
	created := body["user"].(map[string]any)
	if created["username"] != username || created["email"] != email || created["phone"] != phone {
		t.Fatalf("signup mismatch: got %+v", created)
	}

	resp, _ = postJSON(t, ts.URL+"/auth-login", dto.LoginRequest{EmailOrUsername: username, Password: password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	resp, body = postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{Email: email, OTP: mail.code(email)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify login status = %d: %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if strings.TrimSpace(token) == "" {
		t.Fatal("verify response missing token")
	}

	resp, me := getWithToken(t, ts.URL+"/auth-me", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	if me["user"].(map[string]any)["id"] != created["id"] {
		t.Fatalf("me returned wrong user: want %v got %v", created["id"], me["user"])
	}

	t.Logf("created user %s (id=%v) and logged in via OTP", username, created["id"])
}

func mustGetEnv(t *testing.T, key string) string {
	t.Helper()
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		t.Fatalf("%s is required", key)
	}
	return val
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
		"../../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
