package auth

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/httputil"
)

// RequireAuth returns Fiber middleware that validates a JWT Bearer token from the Authorization header and stores
// the user ID in c.Locals("userID").
func RequireAuth(secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Missing authorization header")
		}

		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid authorization format")
		}
		tokenStr := header[len(prefix):]

		userID, err := authenticate(tokenStr, secret)
		if err != nil {
			code := apierrors.Unauthorized
			message := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = apierrors.TokenExpired
				message = "Token has expired"
			}
			return httputil.Fail(c, fiber.StatusUnauthorized, code, message)
		}

		c.Locals("userID", userID)
		return c.Next()
	}
}

// authenticate validates a bearer token string and returns the subject user ID.
func authenticate(tokenStr, secret string) (uuid.UUID, error) {
	claims, err := ValidateAccessToken(tokenStr, secret)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject: %w", err)
	}
	return userID, nil
}
