package auth

import "errors"

// External error taxonomy. InvalidCredentials is deliberately coarse: bad
// password and unknown email produce the identical signal so the login
// endpoint cannot be used to enumerate accounts. The specific internal
// branch is audit-logged, never surfaced.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountInactive    = errors.New("account inactive")
	ErrRateLimited        = errors.New("too many attempts")
)
