package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/auth"
	"github.com/uncord-chat/uncord-server/internal/httputil"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: service, log: logger}
}

// registerRequest is the JSON body for POST /register.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the JSON body for POST /login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the signed access token.
type loginResponse struct {
	Token string `json:"token"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body registerRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}

	u, err := h.auth.Register(c, body.Username, body.Email, body.Password)
	if err != nil {
		return h.mapAuthError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, u.ToView())
}

// Login handles POST /login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}

	token, err := h.auth.Login(c, body.Email, body.Password)
	if err != nil {
		return h.mapAuthError(c, err)
	}

	return httputil.Success(c, loginResponse{Token: token})
}

// mapAuthError converts auth-layer errors to structured HTTP responses.
func (h *AuthHandler) mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrUsernameLength),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrEmailAlreadyTaken):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid email or password")
	default:
		h.log.Error().Err(err).Str("handler", "auth").Msg("unhandled auth service error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
