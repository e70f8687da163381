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
	"github.com/uncord-chat/uncord-server/internal/server"
)

// ChannelHandler serves channel creation, rename, and deletion. All three are owner-only operations on the channel's
// server.
type ChannelHandler struct {
	channels  channel.Repository
	servers   server.Repository
	publisher *gateway.Publisher
	log       zerolog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(channels channel.Repository, servers server.Repository, publisher *gateway.Publisher, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, servers: servers, publisher: publisher, log: logger}
}

// createChannelRequest is the JSON body for POST /servers/{serverID}/channels.
type createChannelRequest struct {
	Name string `json:"name"`
}

// updateChannelRequest is the JSON body for POST /channels/{channelID}.
type updateChannelRequest struct {
	Name *string `json:"name"`
}

// Create handles POST /servers/{serverID}/channels.
func (h *ChannelHandler) Create(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	serverID, err := uuid.Parse(c.Params("serverID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid server ID")
	}

	srv, err := h.servers.GetByID(c, serverID)
	if err != nil {
		return h.mapChannelError(c, err)
	}
	if srv.OwnerID != userID {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only the server owner may do this")
	}

	var body createChannelRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	if err := channel.ValidateName(&body.Name); err != nil {
		return h.mapChannelError(c, err)
	}

	ch, err := h.channels.Create(c, channel.CreateParams{ServerID: serverID, Name: body.Name})
	if err != nil {
		return h.mapChannelError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		NewChannel: &gateway.NewChannelEvent{ChannelID: ch.ID},
	})

	return httputil.SuccessStatus(c, fiber.StatusCreated, ch.ToView())
}

// Update handles POST /channels/{channelID}.
func (h *ChannelHandler) Update(c fiber.Ctx) error {
	ch, err := h.requireOwnedChannel(c)
	if err != nil || ch == nil {
		return err
	}

	var body updateChannelRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	if err := channel.ValidateName(body.Name); err != nil {
		return h.mapChannelError(c, err)
	}

	updated, err := h.channels.Update(c, ch.ID, channel.UpdateParams{Name: body.Name})
	if err != nil {
		return h.mapChannelError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		UpdateChannel: &gateway.UpdateChannelEvent{ChannelID: updated.ID},
	})

	return httputil.Success(c, updated.ToView())
}

// Delete handles DELETE /channels/{channelID}. The broker event carries the server ID because the channel row is
// gone by the time the gateway fans the event out.
func (h *ChannelHandler) Delete(c fiber.Ctx) error {
	ch, err := h.requireOwnedChannel(c)
	if err != nil || ch == nil {
		return err
	}

	if err := h.channels.Delete(c, ch.ID); err != nil {
		return h.mapChannelError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		DeleteChannel: &gateway.DeleteChannelEvent{ServerID: ch.ServerID, ChannelID: ch.ID},
	})

	return c.SendStatus(fiber.StatusNoContent)
}

// requireOwnedChannel loads the channel from the channelID path parameter and verifies the caller owns its server.
// On failure it writes the error response and returns a nil channel; the accompanying error is nil unless writing the
// response failed, and the caller returns it unchanged.
func (h *ChannelHandler) requireOwnedChannel(c fiber.Ctx) (*channel.Channel, error) {
	userID := c.Locals("userID").(uuid.UUID)

	channelID, err := uuid.Parse(c.Params("channelID"))
	if err != nil {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid channel ID")
	}

	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		return nil, h.mapChannelError(c, err)
	}

	srv, err := h.servers.GetByID(c, ch.ServerID)
	if err != nil {
		return nil, h.mapChannelError(c, err)
	}
	if srv.OwnerID != userID {
		return nil, httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only the server owner may do this")
	}
	return ch, nil
}

// mapChannelError converts channel-layer errors to structured HTTP responses.
func (h *ChannelHandler) mapChannelError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, channel.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Channel not found")
	case errors.Is(err, server.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Server not found")
	case errors.Is(err, channel.ErrNameLength):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "channel").Msg("unhandled channel error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
