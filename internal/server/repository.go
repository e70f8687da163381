package server

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

const selectColumns = "id, name, owner_id, created_at, updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed server repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

func scanServer(row pgx.Row) (*Server, error) {
	var s Server
	err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan server: %w", err)
	}
	return &s, nil
}

// CreateWithOwnerChannel inserts a server, its first channel, and the owner's membership in one transaction. The
// server cannot exist without an owner and without at least one channel, so all three rows are committed together or
// not at all.
func (r *PGRepository) CreateWithOwnerChannel(ctx context.Context, name string, ownerID uuid.UUID, firstChannelName string) (*Server, error) {
	var created *Server
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		s, err := scanServer(tx.QueryRow(ctx,
			`INSERT INTO servers (name, owner_id) VALUES ($1, $2) RETURNING `+selectColumns,
			name, ownerID,
		))
		if err != nil {
			return fmt.Errorf("insert server: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO channels (server_id, name) VALUES ($1, $2)`,
			s.ID, firstChannelName,
		); err != nil {
			return fmt.Errorf("insert first channel: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO memberships (user_id, server_id) VALUES ($1, $2)`,
			ownerID, s.ID,
		); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}

		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID returns the server matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Server, error) {
	s, err := scanServer(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM servers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query server by id: %w", err)
	}
	return s, nil
}

// ListByUser returns every server the given user is a member of ("servers of user" per the Store adapter contract).
func (r *PGRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Server, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.name, s.owner_id, s.created_at, s.updated_at
		 FROM servers s JOIN memberships m ON m.server_id = s.id
		 WHERE m.user_id = $1
		 ORDER BY s.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query servers of user: %w", err)
	}
	defer rows.Close()

	var servers []*Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// Update applies the non-nil fields in params to the server row and returns the updated server.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Server, error) {
	if params.Name == nil {
		return r.GetByID(ctx, id)
	}

	s, err := scanServer(r.db.QueryRow(ctx,
		`UPDATE servers SET name = $1 WHERE id = $2 RETURNING `+selectColumns,
		*params.Name, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update server: %w", err)
	}
	return s, nil
}

// Delete removes the server. Channels cascade via the channels.server_id foreign key.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
