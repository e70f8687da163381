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
	"github.com/uncord-chat/uncord-server/internal/member"
	"github.com/uncord-chat/uncord-server/internal/message"
)

// MessageHandler serves posting, listing, and editing messages in a channel. Every operation requires membership of
// the channel's server.
type MessageHandler struct {
	messages  message.Repository
	channels  channel.Repository
	members   member.Repository
	publisher *gateway.Publisher
	log       zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages message.Repository, channels channel.Repository, members member.Repository, publisher *gateway.Publisher, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, channels: channels, members: members, publisher: publisher, log: logger}
}

// createMessageRequest is the JSON body for POST /channels/{channelID}/messages.
type createMessageRequest struct {
	Content string `json:"content"`
}

// updateMessageRequest is the JSON body for PATCH /channels/{channelID}/messages/{messageID}.
type updateMessageRequest struct {
	Content string `json:"content"`
}

// Create handles POST /channels/{channelID}/messages.
func (h *MessageHandler) Create(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	ch, err := h.requireChannelAccess(c, userID)
	if err != nil || ch == nil {
		return err
	}

	var body createMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	content, err := message.ValidateContent(body.Content)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	msg, err := h.messages.Create(c, message.CreateParams{
		ChannelID: ch.ID,
		AuthorID:  userID,
		Content:   content,
	})
	if err != nil {
		return h.mapMessageError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		NewMessage: &gateway.NewMessageEvent{ChannelID: ch.ID, MessageID: msg.ID},
	})

	return httputil.SuccessStatus(c, fiber.StatusCreated, msg.ToView())
}

// List handles GET /channels/{channelID}/messages with optional before-cursor pagination (?before=<message_id>,
// ?limit=<n>).
func (h *MessageHandler) List(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	ch, err := h.requireChannelAccess(c, userID)
	if err != nil || ch == nil {
		return err
	}

	var before *uuid.UUID
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid before cursor")
		}
		before = &id
	}
	limit := message.ClampLimit(fiber.Query[int](c, "limit"))

	messages, err := h.messages.List(c, ch.ID, before, limit)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	views := make([]message.View, len(messages))
	for i := range messages {
		views[i] = messages[i].ToView()
	}
	return httputil.Success(c, views)
}

// Update handles PATCH /channels/{channelID}/messages/{messageID}. Only the author may edit a message's content.
func (h *MessageHandler) Update(c fiber.Ctx) error {
	userID := c.Locals("userID").(uuid.UUID)

	ch, err := h.requireChannelAccess(c, userID)
	if err != nil || ch == nil {
		return err
	}

	messageID, err := uuid.Parse(c.Params("messageID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid message ID")
	}

	msg, err := h.messages.GetByID(c, messageID)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	if msg.ChannelID != ch.ID {
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Message not found")
	}
	if msg.AuthorID != userID {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only the author may edit a message")
	}

	var body updateMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	content, err := message.ValidateContent(body.Content)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	updated, err := h.messages.Update(c, messageID, content)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	h.publisher.Publish(c, &gateway.Event{
		UpdateMessage: &gateway.UpdateMessageEvent{ChannelID: ch.ID, MessageID: updated.ID},
	})

	return httputil.Success(c, updated.ToView())
}

// requireChannelAccess loads the channel from the channelID path parameter and verifies the caller is a member of
// its server. On failure it writes the error response and returns a nil channel; the accompanying error is nil unless
// writing the response failed, and the caller returns it unchanged.
func (h *MessageHandler) requireChannelAccess(c fiber.Ctx, userID uuid.UUID) (*channel.Channel, error) {
	channelID, err := uuid.Parse(c.Params("channelID"))
	if err != nil {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid channel ID")
	}

	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		return nil, h.mapMessageError(c, err)
	}

	isMember, err := h.members.IsMember(c, userID, ch.ServerID)
	if err != nil {
		return nil, h.mapMessageError(c, err)
	}
	if !isMember {
		return nil, httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Not a member of this server")
	}
	return ch, nil
}

// mapMessageError converts message-layer errors to structured HTTP responses.
func (h *MessageHandler) mapMessageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, channel.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Channel not found")
	case errors.Is(err, message.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Message not found")
	case errors.Is(err, message.ErrEmptyContent), errors.Is(err, message.ErrContentTooLong):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "message").Msg("unhandled message error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
