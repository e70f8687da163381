package auth

import "errors"

// Sentinel errors for the auth package.
var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrUsernameLength     = errors.New("username must be between 3 and 32 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 64 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyTaken  = errors.New("email already taken")
)
