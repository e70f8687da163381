// Package server models a multi-tenant "server" (a community containing channels). Every server has exactly one
// immutable owner and at least one channel from the moment it is created.
package server

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the server package.
var (
	ErrNotFound   = errors.New("server not found")
	ErrNameLength = errors.New("name must be between 4 and 64 characters")
)

// Server is a tenant: a named community owned by one user.
type Server struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// View is the wire representation of a Server sent to clients.
type View struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// ToView converts a Server to its wire representation.
func (s *Server) ToView() View {
	return View{ID: s.ID, Name: s.Name, OwnerID: s.OwnerID}
}

// UpdateParams groups the optional fields for updating a server. Name is the only mutable field in this data model.
type UpdateParams struct {
	Name *string
}

// ValidateName checks that a name is between 4 and 64 characters (runes) after trimming whitespace. On success the
// pointed-to value is replaced with the trimmed result.
func ValidateName(name *string) error {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if n := utf8.RuneCountInString(trimmed); n < 4 || n > 64 {
		return ErrNameLength
	}
	*name = trimmed
	return nil
}

// Repository defines the data-access contract for server operations. CreateWithOwnerChannel creates a server, its
// first channel, and the owner's membership atomically, since "a server with no owner cannot exist" and "every
// server has at least one channel at creation".
type Repository interface {
	CreateWithOwnerChannel(ctx context.Context, name string, ownerID uuid.UUID, firstChannelName string) (*Server, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Server, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Server, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Server, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
