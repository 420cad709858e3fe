package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request, dst any) *http.Response {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if dst != nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading body: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if len(body) > 0 {
			if err := json.Unmarshal(body, dst); err != nil {
				t.Fatalf("decoding JSON: %v\nraw: %s", err, body)
			}
		}
	}
	return resp
}

func TestSignupThenLoginSetsSessionCookie(t *testing.T) {
	t.Parallel()
	app, cfg, _ := newTestApp(t)

	resp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", signupRequest{
		Email: "alice@example.com", Password: "password123",
	}), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var env struct {
		Data refreshResponse `json:"data"`
	}
	resp2 := doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "alice@example.com", Password: "password123",
	}), &env)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}
	if env.Data.AccessToken == "" {
		t.Fatal("login response missing access_token")
	}

	var sawCookie bool
	for _, c := range resp2.Cookies() {
		if c.Name == cfg.JWTCookieName {
			sawCookie = true
			if c.Value == "" {
				t.Error("session cookie value is empty")
			}
		}
	}
	if !sawCookie {
		t.Errorf("login response did not set the %q cookie", cfg.JWTCookieName)
	}
}

func TestSignupDuplicateEmailReturnsConflict(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	body := signupRequest{Email: "alice@example.com", Password: "password123"}
	doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", body), nil)

	resp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", body), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second signup status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestLoginWithTwoFAReturnsPartialContent(t *testing.T) {
	t.Parallel()
	app, _, mailer := newTestApp(t)

	doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", signupRequest{
		Email: "bob@example.com", Password: "password123", RequiresTwoFA: true, TwoFAMethod: "email",
	}), nil)

	var env struct {
		Data struct {
			Message        string `json:"message"`
			LoginAttemptID string `json:"loginAttemptId"`
		} `json:"data"`
	}
	resp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "bob@example.com", Password: "password123",
	}), &env)
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusPartialContent)
	}
	if env.Data.LoginAttemptID == "" {
		t.Fatal("login response missing loginAttemptId")
	}

	code := mailer.codeFor(t, "bob@example.com")

	var verifyEnv struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	verifyResp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/verify-2fa", verifyTwoFARequest{
		Email: "bob@example.com", LoginAttemptID: env.Data.LoginAttemptID, TwoFACode: code,
	}), &verifyEnv)
	if verifyResp.StatusCode != http.StatusOK {
		t.Fatalf("verify-2fa status = %d, want %d", verifyResp.StatusCode, http.StatusOK)
	}
	if verifyEnv.Data.AccessToken == "" {
		t.Error("verify-2fa response missing access_token")
	}
}

func TestLogoutThenLogoutAgainIsUnauthorized(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", signupRequest{
		Email: "alice@example.com", Password: "password123",
	}), nil)

	var loginEnv struct {
		Data refreshResponse `json:"data"`
	}
	doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "alice@example.com", Password: "password123",
	}), &loginEnv)

	logoutReq := jsonRequest(t, http.MethodPost, "/logout", nil)
	logoutReq.Header.Set("Authorization", "Bearer "+loginEnv.Data.AccessToken)
	resp := doJSON(t, app, logoutReq, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first logout status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	logoutReq2 := jsonRequest(t, http.MethodPost, "/logout", nil)
	logoutReq2.Header.Set("Authorization", "Bearer "+loginEnv.Data.AccessToken)
	resp2 := doJSON(t, app, logoutReq2, nil)
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("second logout status = %d, want %d", resp2.StatusCode, http.StatusUnauthorized)
	}
}

func TestRefreshRotationSingleUse(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", signupRequest{
		Email: "alice@example.com", Password: "password123",
	}), nil)

	var loginEnv struct {
		Data refreshResponse `json:"data"`
	}
	doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "alice@example.com", Password: "password123",
	}), &loginEnv)

	var firstEnv struct {
		Data refreshResponse `json:"data"`
	}
	resp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/refresh", refreshRequest{
		RefreshToken: loginEnv.Data.RefreshToken,
	}), &firstEnv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first refresh status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp2 := doJSON(t, app, jsonRequest(t, http.MethodPost, "/refresh", refreshRequest{
		RefreshToken: loginEnv.Data.RefreshToken,
	}), nil)
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("reuse of rotated refresh token status = %d, want %d", resp2.StatusCode, http.StatusUnauthorized)
	}
}

func TestEnumerationSafetyIdenticalLoginFailureShape(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", signupRequest{
		Email: "carol@example.com", Password: "password123",
	}), nil)

	unknownResp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "dave@example.com", Password: "whatever1",
	}), nil)
	wrongPassResp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "carol@example.com", Password: "wrongpassword",
	}), nil)

	if unknownResp.StatusCode != http.StatusUnauthorized || wrongPassResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status codes = %d, %d, want both %d", unknownResp.StatusCode, wrongPassResp.StatusCode, http.StatusUnauthorized)
	}
}

func TestForgotAndResetPasswordRoundTrip(t *testing.T) {
	t.Parallel()
	app, _, mailer := newTestApp(t)

	doJSON(t, app, jsonRequest(t, http.MethodPost, "/signup", signupRequest{
		Email: "eve@example.com", Password: "password123",
	}), nil)

	var forgotEnv struct {
		Data struct {
			LoginAttemptID string `json:"loginAttemptId"`
		} `json:"data"`
	}
	resp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/forgot-password", forgotPasswordRequest{
		Email: "eve@example.com",
	}), &forgotEnv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot-password status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if forgotEnv.Data.LoginAttemptID == "" {
		t.Fatal("forgot-password response missing loginAttemptId for an existing account")
	}

	code := mailer.codeFor(t, "eve@example.com")

	resetResp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/reset-password", resetPasswordRequest{
		Email: "eve@example.com", LoginAttemptID: forgotEnv.Data.LoginAttemptID, TwoFACode: code, NewPassword: "longenough1",
	}), nil)
	if resetResp.StatusCode != http.StatusOK {
		t.Fatalf("reset-password status = %d, want %d", resetResp.StatusCode, http.StatusOK)
	}

	oldLoginResp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "eve@example.com", Password: "password123",
	}), nil)
	if oldLoginResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login with old password status = %d, want %d", oldLoginResp.StatusCode, http.StatusUnauthorized)
	}

	newLoginResp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/login", loginRequest{
		Email: "eve@example.com", Password: "longenough1",
	}), nil)
	if newLoginResp.StatusCode != http.StatusOK {
		t.Errorf("login with new password status = %d, want %d", newLoginResp.StatusCode, http.StatusOK)
	}
}

func TestForgotPasswordUnknownEmailLooksIdentical(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, jsonRequest(t, http.MethodPost, "/forgot-password", forgotPasswordRequest{
		Email: "nobody@example.com",
	}), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("forgot-password for unknown email status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
