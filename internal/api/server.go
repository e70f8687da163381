package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/gateway"
	"github.com/uncord-chat/uncord-server/internal/httputil"
	"github.com/uncord-chat/uncord-server/internal/invite"
	"github.com/uncord-chat/uncord-server/internal/member"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// defaultChannelName is the channel every server starts with.
const defaultChannelName = "general"

// ServerHandler serves server CRUD and the per-server listing endpoints.
type ServerHandler struct {
	servers   server.Repository
	channels  channel.Repository
	members   member.Repository
	invites   invite.Repository
	publisher *gateway.Publisher
	log       zerolog.Logger
}

// NewServerHandler creates a new server handler.
func NewServerHandler(
	servers server.Repository,
	channels channel.Repository,
	members member.Repository,
	invites invite.Repository,
	publisher *gateway.Publisher,
	logger zerolog.Logger,
) *ServerHandler {
	return &ServerHandler{
		servers:   servers,
		channels:  channels,
		members:   members,
		invites:   invites,
		publisher: publisher,
		log:       logger,
	}
}

// createServerRequest is the JSON body for POST /servers.
type createServerRequest struct {
	Name string `json:"name"`
}

// updateServerRequest is the JSON body for POST /servers/{serverID}.
type updateServerRequest struct {
	Name *string `json:"name"`
}

// Create handles POST /servers. The server, its first channel, and the owner's membership are created in one
// transaction; the NewServer broker event is published only after that commit.
func (h *ServerHandler) Create(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	var body createServerRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	if err := server.ValidateName(&body.Name); err != nil {
		return h.mapServerError(c, err)
	}

	srv, err := h.servers.CreateWithOwnerChannel(c, body.Name, userID, defaultChannelName)
	if err != nil {
		return h.mapServerError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		NewServer: &gateway.NewServerEvent{UserID: userID, ServerID: srv.ID},
	})

	return httputil.SuccessStatus(c, fiber.StatusCreated, srv.ToView())
}

// List handles GET /servers, returning the servers the caller is a member of.
func (h *ServerHandler) List(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	servers, err := h.servers.ListByUser(c, userID)
	if err != nil {
		return h.mapServerError(c, err)
	}

	views := make([]server.View, len(servers))
	for i, srv := range servers {
		views[i] = srv.ToView()
	}
	return httputil.Success(c, views)
}

// Get handles GET /servers/{serverID}. Only members may read a server.
func (h *ServerHandler) Get(c fiber.Ctx) error {
	srv, err := h.requireMember(c)
	if err != nil || srv == nil {
		return err
	}
	return httputil.Success(c, srv.ToView())
}

// Update handles POST /servers/{serverID}. Only the owner may rename a server.
func (h *ServerHandler) Update(c fiber.Ctx) error {
	srv, err := h.requireOwner(c)
	if err != nil || srv == nil {
		return err
	}

	var body updateServerRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	if err := server.ValidateName(body.Name); err != nil {
		return h.mapServerError(c, err)
	}

	updated, err := h.servers.Update(c, srv.ID, server.UpdateParams{Name: body.Name})
	if err != nil {
		return h.mapServerError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		UpdateServer: &gateway.UpdateServerEvent{ServerID: updated.ID},
	})

	return httputil.Success(c, updated.ToView())
}

// Delete handles DELETE /servers/{serverID}. Only the owner may delete a server; channels, messages, memberships,
// and invites cascade away with it.
func (h *ServerHandler) Delete(c fiber.Ctx) error {
	srv, err := h.requireOwner(c)
	if err != nil || srv == nil {
		return err
	}

	if err := h.servers.Delete(c, srv.ID); err != nil {
		return h.mapServerError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		DeleteServer: &gateway.DeleteServerEvent{ServerID: srv.ID},
	})

	return c.SendStatus(fiber.StatusNoContent)
}

// ListChannels handles GET /servers/{serverID}/channels for members.
func (h *ServerHandler) ListChannels(c fiber.Ctx) error {
	srv, err := h.requireMember(c)
	if err != nil || srv == nil {
		return err
	}

	channels, err := h.channels.ListByServer(c, srv.ID)
	if err != nil {
		return h.mapServerError(c, err)
	}

	views := make([]channel.View, len(channels))
	for i, ch := range channels {
		views[i] = ch.ToView()
	}
	return httputil.Success(c, views)
}

// ListUsers handles GET /servers/{serverID}/users for members.
func (h *ServerHandler) ListUsers(c fiber.Ctx) error {
	srv, err := h.requireMember(c)
	if err != nil || srv == nil {
		return err
	}

	users, err := h.members.ListUsersByServer(c, srv.ID)
	if err != nil {
		return h.mapServerError(c, err)
	}

	views := make([]user.View, len(users))
	for i, u := range users {
		views[i] = u.ToView()
	}
	return httputil.Success(c, views)
}

// ListInvites handles GET /servers/{serverID}/invites. Only the owner may read invite codes.
func (h *ServerHandler) ListInvites(c fiber.Ctx) error {
	srv, err := h.requireOwner(c)
	if err != nil || srv == nil {
		return err
	}

	invites, err := h.invites.ListByServer(c, srv.ID)
	if err != nil {
		return h.mapServerError(c, err)
	}

	views := make([]invite.View, len(invites))
	for i := range invites {
		views[i] = invites[i].ToView()
	}
	return httputil.Success(c, views)
}

// CreateInvite handles POST /servers/{serverID}/invites for members.
func (h *ServerHandler) CreateInvite(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)
	srv, err := h.requireMember(c)
	if err != nil || srv == nil {
		return err
	}

	inv, err := h.invites.Create(c, srv.ID, userID)
	if err != nil {
		return h.mapServerError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, inv.ToView())
}

// requireMember loads the server from the serverID path parameter and verifies the caller's membership. On failure
// it writes the error response and returns a nil server; the accompanying error is nil unless writing the response
// failed, and the caller returns it unchanged.
func (h *ServerHandler) requireMember(c fiber.Ctx) (*server.Server, error) {
	userID := c.Locals("userID").(uuid.UUID)

	serverID, err := uuid.Parse(c.Params("serverID"))
	if err != nil {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid server ID")
	}

	srv, err := h.servers.GetByID(c, serverID)
	if err != nil {
		return nil, h.mapServerError(c, err)
	}

	isMember, err := h.members.IsMember(c, userID, serverID)
	if err != nil {
		return nil, h.mapServerError(c, err)
	}
	if !isMember {
		return nil, httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Not a member of this server")
	}
	return srv, nil
}

// requireOwner loads the server from the serverID path parameter and verifies the caller owns it. Failures are
// reported the same way as in requireMember.
func (h *ServerHandler) requireOwner(c fiber.Ctx) (*server.Server, error) {
	userID := c.Locals("userID").(uuid.UUID)

	serverID, err := uuid.Parse(c.Params("serverID"))
	if err != nil {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid server ID")
	}

	srv, err := h.servers.GetByID(c, serverID)
	if err != nil {
		return nil, h.mapServerError(c, err)
	}
	if srv.OwnerID != userID {
		return nil, httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only the server owner may do this")
	}
	return srv, nil
}

// mapServerError converts server-layer errors to structured HTTP responses.
func (h *ServerHandler) mapServerError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, server.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Server not found")
	case errors.Is(err, server.ErrNameLength):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "server").Msg("unhandled server error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
