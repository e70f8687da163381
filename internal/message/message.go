// Package message models chat messages posted to a channel.
package message

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the message package.
var (
	ErrNotFound       = errors.New("message not found")
	ErrContentTooLong = errors.New("message content exceeds the maximum length")
	ErrEmptyContent   = errors.New("message content must not be empty")
)

// MaxContentLength is the maximum message content length in runes.
const MaxContentLength = 1000

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Message holds the fields read from the database, including the joined author username. Content is the only
// mutable field, and only the author may change it.
type Message struct {
	ID             uuid.UUID
	ChannelID      uuid.UUID
	AuthorID       uuid.UUID
	AuthorUsername string
	Content        string
	EditedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// View is the wire representation of a Message sent to clients.
type View struct {
	ID        uuid.UUID  `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToView converts a Message to its wire representation.
func (m *Message) ToView() View {
	return View{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	}
}

// CreateParams groups the inputs for creating a new message.
type CreateParams struct {
	ChannelID uuid.UUID
	AuthorID  uuid.UUID
	Content   string
}

// ValidateContent checks that content is non-empty after trimming and does not exceed MaxContentLength runes.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting to DefaultLimit when the input is zero or
// negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for message operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	List(ctx context.Context, channelID uuid.UUID, before *uuid.UUID, limit int) ([]Message, error)
	Update(ctx context.Context, id uuid.UUID, content string) (*Message, error)
}
