package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/member"
	"github.com/uncord-chat/uncord-server/internal/message"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// Store is the narrow read-only view of the persistent store the Hub consults during fan-out. Any operation may fail
// with a transient I/O error; the Hub treats such failures as "drop this fan-out" and continues.
type Store interface {
	ChannelByID(ctx context.Context, id uuid.UUID) (*channel.Channel, error)
	ServerByID(ctx context.Context, id uuid.UUID) (*server.Server, error)
	ChannelsOfServer(ctx context.Context, serverID uuid.UUID) ([]*channel.Channel, error)
	MembersOfServer(ctx context.Context, serverID uuid.UUID) ([]*user.User, error)
	ServersOfUser(ctx context.Context, userID uuid.UUID) ([]*server.Server, error)
	ChannelsOfUser(ctx context.Context, userID uuid.UUID) ([]*channel.Channel, error)
	// MessageByID returns the message with its author's username already joined in.
	MessageByID(ctx context.Context, id uuid.UUID) (*message.Message, error)
}

// RepoStore implements Store by delegating to the per-domain repositories.
type RepoStore struct {
	servers  server.Repository
	channels channel.Repository
	members  member.Repository
	messages message.Repository
}

// NewRepoStore creates a Store backed by the given repositories.
func NewRepoStore(servers server.Repository, channels channel.Repository, members member.Repository, messages message.Repository) *RepoStore {
	return &RepoStore{servers: servers, channels: channels, members: members, messages: messages}
}

func (s *RepoStore) ChannelByID(ctx context.Context, id uuid.UUID) (*channel.Channel, error) {
	return s.channels.GetByID(ctx, id)
}

func (s *RepoStore) ServerByID(ctx context.Context, id uuid.UUID) (*server.Server, error) {
	return s.servers.GetByID(ctx, id)
}

func (s *RepoStore) ChannelsOfServer(ctx context.Context, serverID uuid.UUID) ([]*channel.Channel, error) {
	return s.channels.ListByServer(ctx, serverID)
}

func (s *RepoStore) MembersOfServer(ctx context.Context, serverID uuid.UUID) ([]*user.User, error) {
	return s.members.ListUsersByServer(ctx, serverID)
}

func (s *RepoStore) ServersOfUser(ctx context.Context, userID uuid.UUID) ([]*server.Server, error) {
	return s.servers.ListByUser(ctx, userID)
}

func (s *RepoStore) ChannelsOfUser(ctx context.Context, userID uuid.UUID) ([]*channel.Channel, error) {
	return s.channels.ListByUser(ctx, userID)
}

func (s *RepoStore) MessageByID(ctx context.Context, id uuid.UUID) (*message.Message, error) {
	return s.messages.GetByID(ctx, id)
}
