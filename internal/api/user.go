package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/config"
	"github.com/fennelauth/authcore/internal/credential"
	"github.com/fennelauth/authcore/internal/engine"
	"github.com/fennelauth/authcore/internal/httputil"
)

// AccountHandler serves the authenticated account-settings endpoints. Unlike the teacher's middleware-gated
// handlers, these don't run behind a separate auth middleware: each engine call takes the raw session token and
// authenticates it itself, so a missing or banned token surfaces as the engine's own sentinel error.
type AccountHandler struct {
	engine *engine.Engine
	cfg    *config.Config
	log    zerolog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(eng *engine.Engine, cfg *config.Config, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{engine: eng, cfg: cfg, log: logger}
}

type accountSettingsResponse struct {
	RequiresTwoFA bool   `json:"requires2FA"`
	TwoFAMethod   string `json:"twoFAMethod"`
}

type updateAccountSettingsRequest struct {
	RequiresTwoFA bool   `json:"requires2FA"`
	TwoFAMethod   string `json:"twoFAMethod"`
}

// GetSettings handles GET /api/v1/account/settings.
func (h *AccountHandler) GetSettings(c fiber.Ctx) error {
	settings, err := h.engine.GetAccountSettings(c, sessionToken(c, h.cfg.JWTCookieName))
	if err != nil {
		return mapEngineError(c, err, h.log, "get_account_settings")
	}

	return httputil.Success(c, accountSettingsResponse{
		RequiresTwoFA: settings.RequiresTwoFA,
		TwoFAMethod:   string(settings.TwoFAMethod),
	})
}

// UpdateSettings handles PATCH /api/v1/account/settings. When the submitted method enables authenticator-app 2FA,
// the response includes the freshly provisioned otpauth:// URI for the user to scan.
func (h *AccountHandler) UpdateSettings(c fiber.Ctx) error {
	var body updateAccountSettingsRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, "invalid request body")
	}

	method := credential.TwoFAMethod(body.TwoFAMethod)
	if !body.RequiresTwoFA {
		method = ""
	}

	uri, err := h.engine.UpdateAccountSettings(c, sessionToken(c, h.cfg.JWTCookieName), body.RequiresTwoFA, method)
	if err != nil {
		return mapEngineError(c, err, h.log, "update_account_settings")
	}

	resp := fiber.Map{"requires2FA": body.RequiresTwoFA, "twoFAMethod": body.TwoFAMethod}
	if uri != "" {
		resp["provisioningUri"] = uri
	}
	return httputil.Success(c, resp)
}

// Delete handles DELETE /api/v1/account.
func (h *AccountHandler) Delete(c fiber.Ctx) error {
	if err := h.engine.DeleteAccount(c, sessionToken(c, h.cfg.JWTCookieName)); err != nil {
		return mapEngineError(c, err, h.log, "delete_account")
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.JWTCookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   0,
	})
	return c.SendStatus(fiber.StatusNoContent)
}
