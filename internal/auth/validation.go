package auth

import (
	"net/mail"
	"strings"
)

// ValidateEmail parses and normalizes an email address, returning the normalized form. Returns ErrInvalidEmail if the
// format is invalid or the address is longer than 254 characters.
func ValidateEmail(email string) (normalized string, err error) {
	addr, parseErr := mail.ParseAddress(email)
	if parseErr != nil {
		return "", ErrInvalidEmail
	}

	normalized = strings.ToLower(addr.Address)
	if len(normalized) > 254 {
		return "", ErrInvalidEmail
	}

	parts := strings.SplitN(normalized, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalidEmail
	}

	return normalized, nil
}

// ValidateUsername checks that a username is 3-32 characters.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return ErrUsernameLength
	}
	return nil
}

// ValidatePassword checks that a password is between 8 and 64 characters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 64 {
		return ErrPasswordTooLong
	}
	return nil
}
