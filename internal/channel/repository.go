package channel

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

const selectColumns = "id, server_id, name, created_at, updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed channel repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new channel into the given server.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Channel, error) {
	ch, err := scanChannel(r.db.QueryRow(ctx,
		`INSERT INTO channels (server_id, name) VALUES ($1, $2) RETURNING `+selectColumns,
		params.ServerID, params.Name,
	))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

// GetByID returns the channel matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Channel, error) {
	ch, err := scanChannel(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query channel by id: %w", err)
	}
	return ch, nil
}

// ListByServer returns every channel belonging to the given server, ordered by creation time.
func (r *PGRepository) ListByServer(ctx context.Context, serverID uuid.UUID) ([]*Channel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+` FROM channels WHERE server_id = $1 ORDER BY created_at`, serverID,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels of server: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ListByUser returns every channel of every server the given user is a member of.
func (r *PGRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Channel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.server_id, c.name, c.created_at, c.updated_at
		 FROM channels c
		 JOIN memberships m ON m.server_id = c.server_id
		 WHERE m.user_id = $1
		 ORDER BY c.created_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels of user: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// Update applies the non-nil fields in params to the channel row and returns the updated channel. A no-op update
// (Name nil) returns the current row without issuing an UPDATE, so the database trigger does not bump updated_at.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Channel, error) {
	if params.Name == nil {
		return r.GetByID(ctx, id)
	}

	ch, err := scanChannel(r.db.QueryRow(ctx,
		`UPDATE channels SET name = $1 WHERE id = $2 RETURNING `+selectColumns,
		*params.Name, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update channel: %w", err)
	}
	return ch, nil
}

// Delete removes the channel with the given ID. Messages cascade via the messages.channel_id foreign key.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanChannel scans a single row into a Channel struct.
func scanChannel(row pgx.Row) (*Channel, error) {
	var ch Channel
	if err := row.Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	return &ch, nil
}
