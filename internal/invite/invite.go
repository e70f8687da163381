// Package invite models server invite codes used to join a server.
package invite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the invite package.
var (
	ErrNotFound       = errors.New("invite not found")
	ErrServerNotFound = errors.New("server not found")
	ErrCodeExhausted  = errors.New("failed to generate a unique invite code")
)

// Invite is a server invite code. Joining a server through a code does not consume or expire it: the data model
// carries no use count or expiry, matching the minimal ServerInvite record.
type Invite struct {
	ID        uuid.UUID
	ServerID  uuid.UUID
	Code      string
	CreatorID uuid.UUID
	CreatedAt time.Time
}

// View is the wire representation of an Invite sent to clients.
type View struct {
	Code     string    `json:"code"`
	ServerID uuid.UUID `json:"server_id"`
}

// ToView converts an Invite to its wire representation.
func (i *Invite) ToView() View {
	return View{Code: i.Code, ServerID: i.ServerID}
}

// Repository defines the data-access contract for invite operations.
type Repository interface {
	Create(ctx context.Context, serverID, creatorID uuid.UUID) (*Invite, error)
	GetByCode(ctx context.Context, code string) (*Invite, error)
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]Invite, error)
}
