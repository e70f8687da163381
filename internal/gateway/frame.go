package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/message"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// Frame is the wire format for every WebSocket message exchanged with a client: a type tag and an opaque payload.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server tags.
const (
	tagPing     = "Ping"
	tagIdentify = "Identify"
)

// Server to client tags.
const (
	tagPong          = "Pong"
	tagReady         = "Ready"
	tagNewMessage    = "NewMessage"
	tagNewChannel    = "NewChannel"
	tagNewServer     = "NewServer"
	tagNewUser       = "NewUser"
	tagDeleteUser    = "DeleteUser"
	tagDeleteServer  = "DeleteServer"
	tagDeleteChannel = "DeleteChannel"
	tagUpdateServer  = "UpdateServer"
	tagUpdateChannel = "UpdateChannel"
	tagUpdateMessage = "UpdateMessage"
)

type identifyPayload struct {
	Bearer string `json:"bearer"`
}

type newChannelPayload struct {
	Channel channel.View `json:"channel"`
}

type newServerPayload struct {
	Server   server.View    `json:"server"`
	Channels []channel.View `json:"channels"`
	Users    []user.View    `json:"users"`
}

type newUserPayload struct {
	ServerID uuid.UUID `json:"server_id"`
	User     user.View `json:"user"`
}

type deleteUserPayload struct {
	ServerID uuid.UUID `json:"server_id"`
	UserID   uuid.UUID `json:"user_id"`
}

type deleteServerPayload struct {
	ServerID uuid.UUID `json:"server_id"`
}

type deleteChannelPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

type updateServerPayload struct {
	Server server.View `json:"server"`
}

type updateChannelPayload struct {
	Channel channel.View `json:"channel"`
}

// newMessagePayload differs from message.View: clients receive the author as an embedded UserView rather than a
// bare author_id.
type newMessagePayload struct {
	ID        uuid.UUID  `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	User      user.View  `json:"user"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func encodeFrame(tag string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", tag, err)
		}
		raw = encoded
	}
	data, err := json.Marshal(Frame{Type: tag, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", tag, err)
	}
	return data, nil
}

func encodePong() []byte {
	data, err := encodeFrame(tagPong, nil)
	if err != nil {
		// tagPong carries no payload, so encoding can only fail on the outer Marshal, which never happens for this
		// fixed shape.
		panic(err)
	}
	return data
}

func encodeReady() ([]byte, error) {
	return encodeFrame(tagReady, nil)
}

func encodeNewChannel(c *channel.Channel) ([]byte, error) {
	return encodeFrame(tagNewChannel, newChannelPayload{Channel: c.ToView()})
}

func encodeNewServer(s *server.Server, chs []*channel.Channel, users []*user.User) ([]byte, error) {
	channelViews := make([]channel.View, len(chs))
	for i, c := range chs {
		channelViews[i] = c.ToView()
	}
	userViews := make([]user.View, len(users))
	for i, u := range users {
		userViews[i] = u.ToView()
	}
	return encodeFrame(tagNewServer, newServerPayload{Server: s.ToView(), Channels: channelViews, Users: userViews})
}

func encodeNewUser(serverID uuid.UUID, u *user.User) ([]byte, error) {
	return encodeFrame(tagNewUser, newUserPayload{ServerID: serverID, User: u.ToView()})
}

func encodeDeleteUser(serverID, userID uuid.UUID) ([]byte, error) {
	return encodeFrame(tagDeleteUser, deleteUserPayload{ServerID: serverID, UserID: userID})
}

func encodeDeleteServer(serverID uuid.UUID) ([]byte, error) {
	return encodeFrame(tagDeleteServer, deleteServerPayload{ServerID: serverID})
}

func encodeDeleteChannel(channelID uuid.UUID) ([]byte, error) {
	return encodeFrame(tagDeleteChannel, deleteChannelPayload{ChannelID: channelID})
}

func encodeUpdateServer(s *server.Server) ([]byte, error) {
	return encodeFrame(tagUpdateServer, updateServerPayload{Server: s.ToView()})
}

func encodeUpdateChannel(c *channel.Channel) ([]byte, error) {
	return encodeFrame(tagUpdateChannel, updateChannelPayload{Channel: c.ToView()})
}

func encodeNewMessage(m *message.Message) ([]byte, error) {
	return encodeMessageFrame(tagNewMessage, m)
}

func encodeUpdateMessage(m *message.Message) ([]byte, error) {
	return encodeMessageFrame(tagUpdateMessage, m)
}

func encodeMessageFrame(tag string, m *message.Message) ([]byte, error) {
	return encodeFrame(tag, newMessagePayload{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		User:      user.View{ID: m.AuthorID, Username: m.AuthorUsername},
		Content:   m.Content,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	})
}
