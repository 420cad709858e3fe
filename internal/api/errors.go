package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/engine"
	"github.com/fennelauth/authcore/internal/httputil"
)

// mapEngineError converts a sentinel error returned by the auth engine into the HTTP status and error code from the
// core's error-kind table. Anything that isn't one of the engine's sentinels (including UnexpectedError) is logged
// and surfaced as a generic 500.
func mapEngineError(c fiber.Ctx, err error, log zerolog.Logger, handler string) error {
	switch {
	case errors.Is(err, engine.ErrMalformedCredentials):
		return httputil.Fail(c, fiber.StatusUnprocessableEntity, httputil.CodeMalformedCredentials, err.Error())
	case errors.Is(err, engine.ErrInvalidCredentials):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidCredentials, err.Error())
	case errors.Is(err, engine.ErrIncorrectCredentials):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeIncorrectCredentials, err.Error())
	case errors.Is(err, engine.ErrUserAlreadyExists):
		return httputil.Fail(c, fiber.StatusConflict, httputil.CodeUserAlreadyExists, err.Error())
	case errors.Is(err, engine.ErrMissingToken):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeMissingToken, err.Error())
	case errors.Is(err, engine.ErrInvalidToken):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeInvalidToken, err.Error())
	case errors.Is(err, engine.ErrBannedToken):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeBannedToken, err.Error())
	default:
		var unexpected engine.UnexpectedError
		if errors.As(err, &unexpected) {
			log.Error().Err(unexpected.Cause).Str("handler", handler).Msg("unexpected engine error")
		} else {
			log.Error().Err(err).Str("handler", handler).Msg("unmapped engine error")
		}
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "an internal error occurred")
	}
}
