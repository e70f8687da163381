package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/httputil"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// UserHandler serves the authenticated user's own profile and server list.
type UserHandler struct {
	users   user.Repository
	servers server.Repository
	log     zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users user.Repository, servers server.Repository, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, servers: servers, log: logger}
}

// Get handles GET /users, returning the caller's own profile.
func (h *UserHandler) Get(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	u, err := h.users.GetByID(c, userID)
	if err != nil {
		return h.mapUserError(c, err)
	}
	return httputil.Success(c, u.ToView())
}

// GetServers handles GET /users/servers, returning the servers the caller is a member of.
func (h *UserHandler) GetServers(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	servers, err := h.servers.ListByUser(c, userID)
	if err != nil {
		return h.mapUserError(c, err)
	}

	views := make([]server.View, len(servers))
	for i, srv := range servers {
		views[i] = srv.ToView()
	}
	return httputil.Success(c, views)
}

// mapUserError converts user-layer errors to structured HTTP responses.
func (h *UserHandler) mapUserError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "User not found")
	default:
		h.log.Error().Err(err).Str("handler", "user").Msg("unhandled user error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
