package member

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/postgres"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed membership repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a membership row. Returns ErrAlreadyMember if the pair already exists.
func (r *PGRepository) Create(ctx context.Context, userID, serverID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO memberships (user_id, server_id) VALUES ($1, $2)", userID, serverID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrAlreadyMember
		}
		if postgres.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// Delete removes a membership row.
func (r *PGRepository) Delete(ctx context.Context, userID, serverID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM memberships WHERE user_id = $1 AND server_id = $2", userID, serverID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember reports whether the user belongs to the server.
func (r *PGRepository) IsMember(ctx context.Context, userID, serverID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = $1 AND server_id = $2)",
		userID, serverID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// ListByServer returns every user ID that belongs to the given server.
func (r *PGRepository) ListByServer(ctx context.Context, serverID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		"SELECT user_id FROM memberships WHERE server_id = $1 ORDER BY joined_at", serverID)
	if err != nil {
		return nil, fmt.Errorf("query members of server: %w", err)
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// ListUsersByServer returns the full user record of every member of the given server, in join order.
func (r *PGRepository) ListUsersByServer(ctx context.Context, serverID uuid.UUID) ([]*user.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.created_at, u.updated_at
		 FROM users u
		 JOIN memberships m ON m.user_id = u.id
		 WHERE m.server_id = $1
		 ORDER BY m.joined_at`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query users of server: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan member user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
