// Package channel models a text channel belonging to exactly one server.
package channel

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the channel package.
var (
	ErrNotFound   = errors.New("channel not found")
	ErrNameLength = errors.New("channel name must be between 4 and 32 characters")
)

// Channel is a message container scoped to one server.
type Channel struct {
	ID        uuid.UUID
	ServerID  uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// View is the wire representation of a Channel sent to clients.
type View struct {
	ID       uuid.UUID `json:"id"`
	ServerID uuid.UUID `json:"server_id"`
	Name     string    `json:"name"`
}

// ToView converts a Channel to its wire representation.
func (c *Channel) ToView() View {
	return View{ID: c.ID, ServerID: c.ServerID, Name: c.Name}
}

// CreateParams groups the inputs for creating a new channel.
type CreateParams struct {
	ServerID uuid.UUID
	Name     string
}

// UpdateParams groups the optional fields for updating a channel. Name is the only mutable field.
type UpdateParams struct {
	Name *string
}

// ValidateName checks that a non-nil name is between 4 and 32 characters (runes). Unlike server names, channel names
// are not trimmed before the length check. A nil pointer means "no change."
func ValidateName(name *string) error {
	if name == nil {
		return nil
	}
	if n := utf8.RuneCountInString(*name); n < 4 || n > 32 {
		return ErrNameLength
	}
	return nil
}

// Repository defines the data-access contract for channel operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Channel, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Channel, error)
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]*Channel, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Channel, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Channel, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
