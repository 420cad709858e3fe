package httputil

import (
	"github.com/gofiber/fiber/v3"
)

// ErrCode identifies the kind of error returned by the auth engine, mirrored into the JSON body so clients can
// branch on it without parsing the message string.
type ErrCode string

const (
	CodeMalformedCredentials ErrCode = "malformed_credentials"
	CodeInvalidCredentials   ErrCode = "invalid_credentials"
	CodeIncorrectCredentials ErrCode = "incorrect_credentials"
	CodeUserAlreadyExists    ErrCode = "user_already_exists"
	CodeMissingToken         ErrCode = "missing_token"
	CodeInvalidToken         ErrCode = "invalid_token"
	CodeBannedToken          ErrCode = "banned_token"
	CodeInvalidBody          ErrCode = "invalid_body"
	CodeNotFound             ErrCode = "not_found"
	CodeRateLimited          ErrCode = "rate_limited"
	CodeInternalError        ErrCode = "internal_error"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorBody holds structured error details.
type ErrorBody struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

// ErrorResponse wraps failed API responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with the given status, code, and message.
func Fail(c fiber.Ctx, status int, code ErrCode, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}
