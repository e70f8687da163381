package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/gateway"
	"github.com/uncord-chat/uncord-server/internal/httputil"
	"github.com/uncord-chat/uncord-server/internal/invite"
	"github.com/uncord-chat/uncord-server/internal/member"
	"github.com/uncord-chat/uncord-server/internal/server"
)

// MemberHandler serves joining a server through an invite code and leaving a server.
type MemberHandler struct {
	members   member.Repository
	servers   server.Repository
	invites   invite.Repository
	publisher *gateway.Publisher
	log       zerolog.Logger
}

// NewMemberHandler creates a new membership handler.
func NewMemberHandler(members member.Repository, servers server.Repository, invites invite.Repository, publisher *gateway.Publisher, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{members: members, servers: servers, invites: invites, publisher: publisher, log: logger}
}

// Join handles PUT /servers/{inviteCode}/users. The invite code resolves to a server; joining an already-joined
// server answers 204 without publishing a broker event.
func (h *MemberHandler) Join(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	inv, err := h.invites.GetByCode(c, c.Params("inviteCode"))
	if err != nil {
		return h.mapMemberError(c, err)
	}

	if err := h.members.Create(c, userID, inv.ServerID); err != nil {
		if errors.Is(err, member.ErrAlreadyMember) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return h.mapMemberError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		UserJoined: &gateway.UserJoinedEvent{UserID: userID, ServerID: inv.ServerID},
	})

	return c.SendStatus(fiber.StatusOK)
}

// Leave handles DELETE /servers/{serverID}/users. The owner cannot leave their own server; ownership is immutable
// and a server with no owner cannot exist.
func (h *MemberHandler) Leave(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	serverID, err := uuid.Parse(c.Params("serverID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid server ID")
	}

	srv, err := h.servers.GetByID(c, serverID)
	if err != nil {
		return h.mapMemberError(c, err)
	}
	if srv.OwnerID == userID {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "The owner cannot leave their own server")
	}

	if err := h.members.Delete(c, userID, serverID); err != nil {
		return h.mapMemberError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		UserLeft: &gateway.UserLeftEvent{UserID: userID, ServerID: serverID},
	})

	return c.SendStatus(fiber.StatusNoContent)
}

// mapMemberError converts membership-layer errors to structured HTTP responses.
func (h *MemberHandler) mapMemberError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, invite.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Invite not found")
	case errors.Is(err, server.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Server not found")
	case errors.Is(err, member.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Membership not found")
	default:
		h.log.Error().Err(err).Str("handler", "member").Msg("unhandled membership error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
