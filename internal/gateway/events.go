package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnknownEvent is returned when a broker payload decodes to JSON but carries no recognised variant key.
var ErrUnknownEvent = errors.New("unknown broker event variant")

// Event is the envelope exchanged between the API write paths and the gateway over the broker queue. Exactly one
// variant field is non-nil; the wire shape is a one-key JSON object named after the variant, e.g.
// {"NewChannel":{"channel_id":"..."}}.
type Event struct {
	NewChannel    *NewChannelEvent    `json:"NewChannel,omitempty"`
	NewServer     *NewServerEvent     `json:"NewServer,omitempty"`
	UserJoined    *UserJoinedEvent    `json:"UserJoined,omitempty"`
	UserLeft      *UserLeftEvent      `json:"UserLeft,omitempty"`
	DeleteServer  *DeleteServerEvent  `json:"DeleteServer,omitempty"`
	DeleteChannel *DeleteChannelEvent `json:"DeleteChannel,omitempty"`
	UpdateServer  *UpdateServerEvent  `json:"UpdateServer,omitempty"`
	UpdateChannel *UpdateChannelEvent `json:"UpdateChannel,omitempty"`
	NewMessage    *NewMessageEvent    `json:"NewMessage,omitempty"`
	UpdateMessage *UpdateMessageEvent `json:"UpdateMessage,omitempty"`
}

// NewChannelEvent announces a channel created on an existing server.
type NewChannelEvent struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// NewServerEvent announces a freshly created server. UserID is the owner, at this point the only member.
type NewServerEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	ServerID uuid.UUID `json:"server_id"`
}

// UserJoinedEvent announces a user joining a server through an invite.
type UserJoinedEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	ServerID uuid.UUID `json:"server_id"`
}

// UserLeftEvent announces a member leaving a server.
type UserLeftEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	ServerID uuid.UUID `json:"server_id"`
}

// DeleteServerEvent announces a server deletion. Membership has already cascaded away by the time the gateway sees
// this, so fan-out is a broadcast relying on per-session filtering.
type DeleteServerEvent struct {
	ServerID uuid.UUID `json:"server_id"`
}

// DeleteChannelEvent announces a channel deletion. The server ID is carried because the channel row is already gone.
type DeleteChannelEvent struct {
	ServerID  uuid.UUID `json:"server_id"`
	ChannelID uuid.UUID `json:"channel_id"`
}

// UpdateServerEvent announces a server rename.
type UpdateServerEvent struct {
	ServerID uuid.UUID `json:"server_id"`
}

// UpdateChannelEvent announces a channel rename.
type UpdateChannelEvent struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// NewMessageEvent announces a message posted to a channel.
type NewMessageEvent struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
}

// UpdateMessageEvent announces a content edit by the message author.
type UpdateMessageEvent struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
}

// Variant returns the name of the populated variant, or "" when the envelope is empty.
func (e *Event) Variant() string {
	switch {
	case e.NewChannel != nil:
		return "NewChannel"
	case e.NewServer != nil:
		return "NewServer"
	case e.UserJoined != nil:
		return "UserJoined"
	case e.UserLeft != nil:
		return "UserLeft"
	case e.DeleteServer != nil:
		return "DeleteServer"
	case e.DeleteChannel != nil:
		return "DeleteChannel"
	case e.UpdateServer != nil:
		return "UpdateServer"
	case e.UpdateChannel != nil:
		return "UpdateChannel"
	case e.NewMessage != nil:
		return "NewMessage"
	case e.UpdateMessage != nil:
		return "UpdateMessage"
	default:
		return ""
	}
}

// DecodeEvent parses a broker payload into an Event, rejecting envelopes that identify no known variant.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode broker event: %w", err)
	}
	if ev.Variant() == "" {
		return nil, ErrUnknownEvent
	}
	return &ev, nil
}
