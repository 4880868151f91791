package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/finflex-be/internal/auth"
	"github.com/hongminglow/finflex-be/internal/logging"
	"github.com/hongminglow/finflex-be/internal/models/dto"
	"github.com/hongminglow/finflex-be/internal/service"
	"github.com/hongminglow/finflex-be/internal/storage"
	"github.com/hongminglow/finflex-be/internal/storage/memory"
)

// inbox records delivered codes per email.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func newInbox() *inbox {
	return &inbox{codes: make(map[string]string)}
}

func (i *inbox) Send(_ context.Context, email, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[email] = code
	return nil
}

func (i *inbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type pinnedCodes struct {
	otp    string
	invite string
}

func (p pinnedCodes) OneTimeCode() (string, error) { return p.otp, nil }
func (p pinnedCodes) InviteCode() (string, error)  { return p.invite, nil }

func newTestServer(t *testing.T, store storage.CredentialStore, notifier *inbox, opts ...service.Option) *httptest.Server {
	t.Helper()
	tokens := auth.NewTokenManager("handler-test-secret", "finflex-test", 7*24*time.Hour)
	svc := service.NewAuthService(store, tokens, notifier, 5*time.Minute, logging.Discard(), opts...)

	r := chi.NewRouter()
	NewAuthHandler(svc, logging.Discard()).Register(r)
	NewHealthHandler(time.Now()).Register(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func getWithToken(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSignupVerifyMeEndToEnd(t *testing.T) {
	store := memory.New()
	mail := newInbox()
	ts := newTestServer(t, store, mail, service.WithCodeGenerator(pinnedCodes{otp: "482913", invite: "K7P2QX"}))

	resp, body := postJSON(t, ts.URL+"/auth-signup", dto.SignupRequest{
		Username: "ann", Email: "ann@x.com", Phone: "555", Password: "pw1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"success":     true,
		"otpRequired": true,
		"email":       "ann@x.com",
		"message":     "OTP sent to your email",
	}, body)
	assert.Equal(t, "482913", mail.code("ann@x.com"))
	assert.Equal(t, 0, store.UserCount())

	resp, body = postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{
		Email:      "ann@x.com",
		OTP:        "482913",
		IsSignup:   true,
		SignupData: &dto.SignupDraft{Username: "ann", Phone: "555", Password: "pw1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	user := body["user"].(map[string]any)
	assert.Equal(t, "ann", user["username"])
	assert.Equal(t, "ann@x.com", user["email"])
	assert.Equal(t, "555", user["phone"])
	assert.Equal(t, "K7P2QX", user["friendCode"])
	assert.Equal(t, []any{}, user["friends"])
	assert.NotContains(t, user, "passwordHash")

	resp, me := getWithToken(t, ts.URL+"/auth-me", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, me["success"])
	assert.Equal(t, user, me["user"])
}

func TestSignupErrors(t *testing.T) {
	store := memory.New()
	ts := newTestServer(t, store, newInbox(), service.WithCodeGenerator(pinnedCodes{otp: "111111", invite: "AAAAAA"}))

	resp, body := postJSON(t, ts.URL+"/auth-signup", map[string]string{"username": "ann"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"success": false, "error": "All fields are required"}, body)

	postJSON(t, ts.URL+"/auth-signup", dto.SignupRequest{Username: "ann", Email: "ann@x.com", Phone: "5", Password: "p"})
	resp, _ = postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{
		Email: "ann@x.com", OTP: "111111", IsSignup: true,
		SignupData: &dto.SignupDraft{Username: "ann", Phone: "5", Password: "p"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = postJSON(t, ts.URL+"/auth-signup", dto.SignupRequest{Username: "bob", Email: "ann@x.com", Phone: "5", Password: "p"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email already in use", body["error"])
}

func TestMalformedJSON(t *testing.T) {
	ts := newTestServer(t, memory.New(), newInbox())

	for _, path := range []string{"/auth-signup", "/auth-login", "/auth-verify-otp"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{not json"))
		require.NoError(t, err)
		body := decodeBody(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, false, body["success"])
	}
}

func TestLoginThroughHTTP(t *testing.T) {
	store := memory.New()
	mail := newInbox()
	ts := newTestServer(t, store, mail)

	postJSON(t, ts.URL+"/auth-signup", dto.SignupRequest{Username: "ann", Email: "ann@x.com", Phone: "5", Password: "pw1"})
	resp, _ := postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{
		Email: "ann@x.com", OTP: mail.code("ann@x.com"), IsSignup: true,
		SignupData: &dto.SignupDraft{Username: "ann", Phone: "5", Password: "pw1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, ts.URL+"/auth-login", dto.LoginRequest{EmailOrUsername: "ann", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["error"])

	resp, body = postJSON(t, ts.URL+"/auth-login", dto.LoginRequest{EmailOrUsername: "ann", Password: "pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ann@x.com", body["email"])

	resp, body = postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{Email: "ann@x.com", OTP: "000000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid or expired OTP", body["error"])

	resp, body = postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{Email: "ann@x.com", OTP: mail.code("ann@x.com")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
}

func TestVerifyUnknownEmail(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SaveOTP(context.Background(), "ghost@x.com", "123456", time.Now().Add(time.Minute)))
	ts := newTestServer(t, store, newInbox())

	resp, body := postJSON(t, ts.URL+"/auth-verify-otp", dto.VerifyOTPRequest{Email: "ghost@x.com", OTP: "123456"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["error"])
}

func TestMeRequiresBearer(t *testing.T) {
	ts := newTestServer(t, memory.New(), newInbox())

	resp, body := getWithToken(t, ts.URL+"/auth-me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])

	resp, body = getWithToken(t, ts.URL+"/auth-me", "not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token", body["error"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, memory.New(), newInbox())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}
