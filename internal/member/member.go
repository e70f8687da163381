// Package member models the many-to-many relationship between users and servers.
package member

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/uncord-chat/uncord-server/internal/user"
)

// Sentinel errors for the member package.
var (
	ErrNotFound      = errors.New("membership not found")
	ErrAlreadyMember = errors.New("user is already a member of this server")
)

// Membership records that a user has joined a server. The pair (UserID, ServerID) is unique.
type Membership struct {
	UserID   uuid.UUID
	ServerID uuid.UUID
	JoinedAt time.Time
}

// Repository defines the data-access contract for membership operations.
type Repository interface {
	// Create inserts a membership row. Returns ErrAlreadyMember on a unique violation.
	Create(ctx context.Context, userID, serverID uuid.UUID) error
	// Delete removes a membership row. Returns ErrNotFound if none existed.
	Delete(ctx context.Context, userID, serverID uuid.UUID) error
	// IsMember reports whether the user belongs to the server.
	IsMember(ctx context.Context, userID, serverID uuid.UUID) (bool, error)
	// ListByServer returns every user ID belonging to the given server.
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]uuid.UUID, error)
	// ListUsersByServer returns the full user records of every member of the given server, in join order.
	ListUsersByServer(ctx context.Context, serverID uuid.UUID) ([]*user.User, error)
}
