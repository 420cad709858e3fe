package token

import "errors"

// ErrInvalidToken covers a bad signature, malformed token, or expiry.
var ErrInvalidToken = errors.New("invalid token")

// ErrBannedToken is returned when the token's jti is present in the revocation store.
var ErrBannedToken = errors.New("token has been revoked")
