// Package user models registered accounts: the id/username/email/password_hash
// identity record the rest of the system references by ID.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the user package.
var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("email already taken")
)

// User is the immutable identity record. Id never changes once assigned.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// View is the wire representation sent to clients. It omits Email and PasswordHash; those never cross the wire.
type View struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// ToView converts a User to its wire representation.
func (u *User) ToView() View {
	return View{ID: u.ID, Username: u.Username}
}

// CreateParams groups the inputs for registering a new user.
type CreateParams struct {
	Username     string
	Email        string
	PasswordHash string
}

// Repository defines the data-access contract for user records.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
