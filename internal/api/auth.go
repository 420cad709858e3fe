package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/config"
	"github.com/fennelauth/authcore/internal/credential"
	"github.com/fennelauth/authcore/internal/engine"
	"github.com/fennelauth/authcore/internal/httputil"
)

// AuthHandler serves the public authentication endpoints backed by the auth engine.
type AuthHandler struct {
	engine *engine.Engine
	cfg    *config.Config
	log    zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(eng *engine.Engine, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{engine: eng, cfg: cfg, log: logger}
}

type signupRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RequiresTwoFA bool   `json:"requires2FA"`
	TwoFAMethod   string `json:"twoFAMethod"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyTwoFARequest struct {
	Email          string `json:"email"`
	LoginAttemptID string `json:"loginAttemptId"`
	TwoFACode      string `json:"2FACode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email          string `json:"email"`
	LoginAttemptID string `json:"loginAttemptId"`
	TwoFACode      string `json:"2FACode"`
	NewPassword    string `json:"newPassword"`
}

// Signup handles POST /api/v1/auth/signup.
func (h *AuthHandler) Signup(c fiber.Ctx) error {
	var body signupRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	method := credential.TwoFAMethod(body.TwoFAMethod)
	if !body.RequiresTwoFA {
		method = ""
	}

	if err := h.engine.Signup(c, body.Email, body.Password, body.RequiresTwoFA, method); err != nil {
		return mapEngineError(c, err, h.log, "signup")
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, fiber.Map{"email": body.Email})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	result, err := h.engine.Login(c, body.Email, body.Password)
	if err != nil {
		return mapEngineError(c, err, h.log, "login")
	}

	if result.TwoFARequired {
		return httputil.SuccessStatus(c, fiber.StatusPartialContent, fiber.Map{
			"message":        "2FA required",
			"loginAttemptId": result.LoginAttemptID.String(),
		})
	}

	h.setSessionCookie(c, result.AccessToken)
	return httputil.Success(c, refreshResponse{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken})
}

// VerifyTwoFA handles POST /api/v1/auth/verify-2fa.
func (h *AuthHandler) VerifyTwoFA(c fiber.Ctx) error {
	var body verifyTwoFARequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	result, err := h.engine.VerifyTwoFA(c, body.Email, body.LoginAttemptID, body.TwoFACode)
	if err != nil {
		return mapEngineError(c, err, h.log, "verify_2fa")
	}

	h.setSessionCookie(c, result.AccessToken)
	return httputil.Success(c, fiber.Map{"access_token": result.AccessToken})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	token := sessionToken(c, h.cfg.JWTCookieName)
	if err := h.engine.Logout(c, token); err != nil {
		return mapEngineError(c, err, h.log, "logout")
	}

	h.clearSessionCookie(c)
	return httputil.Success(c, fiber.Map{"message": "logged out"})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	result, err := h.engine.Refresh(c, body.RefreshToken)
	if err != nil {
		return mapEngineError(c, err, h.log, "refresh")
	}

	h.setSessionCookie(c, result.AccessToken)
	return httputil.Success(c, refreshResponse{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password. The response shape is identical whether or not the email
// exists, per the engine's enumeration-safety contract.
func (h *AuthHandler) ForgotPassword(c fiber.Ctx) error {
	var body forgotPasswordRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	attemptID, err := h.engine.ForgotPassword(c, body.Email)
	if err != nil {
		return mapEngineError(c, err, h.log, "forgot_password")
	}

	return httputil.Success(c, fiber.Map{
		"message":        "if the account exists, a code has been sent",
		"loginAttemptId": attemptID.String(),
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(c fiber.Ctx) error {
	var body resetPasswordRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	if err := h.engine.ResetPassword(c, body.Email, body.LoginAttemptID, body.TwoFACode, body.NewPassword); err != nil {
		return mapEngineError(c, err, h.log, "reset_password")
	}

	return httputil.Success(c, fiber.Map{"message": "password updated"})
}

func (h *AuthHandler) setSessionCookie(c fiber.Ctx, accessToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.JWTCookieName,
		Value:    accessToken,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int(h.cfg.AccessTTL.Seconds()),
	})
}

func (h *AuthHandler) clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.JWTCookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   0,
	})
}
