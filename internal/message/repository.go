package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/postgres"
)

const selectColumns = `m.id, m.channel_id, m.author_id, u.username, m.content, m.edited_at, m.created_at, m.updated_at`

const baseJoin = "FROM messages m JOIN users u ON u.id = m.author_id"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new message and returns it with the joined author username.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`INSERT INTO messages (channel_id, author_id, content) VALUES ($1, $2, $3) RETURNING id`,
		params.ChannelID, params.AuthorID, params.Content,
	).Scan(&id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID returns a single message by ID with the joined author username.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s %s WHERE m.id = $1", selectColumns, baseJoin), id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}
	return msg, nil
}

// List returns messages in a channel ordered newest first. When before is non-nil, only messages created before the
// referenced message are returned (cursor-based pagination).
func (r *PGRepository) List(ctx context.Context, channelID uuid.UUID, before *uuid.UUID, limit int) ([]Message, error) {
	var rows pgx.Rows
	var err error

	if before != nil {
		rows, err = r.db.Query(ctx, fmt.Sprintf(
			`SELECT %s %s
			 WHERE m.channel_id = $1
			   AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = $2)
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $3`, selectColumns, baseJoin),
			channelID, *before, limit,
		)
	} else {
		rows, err = r.db.Query(ctx, fmt.Sprintf(
			`SELECT %s %s
			 WHERE m.channel_id = $1
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $2`, selectColumns, baseJoin),
			channelID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Update sets new content on a message and marks it as edited. Returns the updated message.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, content string) (*Message, error) {
	var updatedID uuid.UUID
	err := r.db.QueryRow(ctx,
		`UPDATE messages SET content = $1, edited_at = NOW() WHERE id = $2 RETURNING id`, content, id,
	).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return r.GetByID(ctx, updatedID)
}

// scanMessage scans a single row into a Message struct.
func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	err := row.Scan(&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.AuthorUsername, &msg.Content, &msg.EditedAt, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
