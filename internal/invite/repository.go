package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/postgres"
)

const (
	codeLength     = 8
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeRetries = 3
)

const selectColumns = `id, server_id, code, creator_id, created_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed invite repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new invite for the given server with a randomly generated code, retrying on the unlikely event of
// a code collision.
func (r *PGRepository) Create(ctx context.Context, serverID, creatorID uuid.UUID) (*Invite, error) {
	for attempt := range maxCodeRetries {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}

		inv, err := scanInvite(r.db.QueryRow(ctx,
			`INSERT INTO server_invites (server_id, code, creator_id) VALUES ($1, $2, $3) RETURNING `+selectColumns,
			serverID, code, creatorID,
		))
		if err != nil {
			if postgres.IsForeignKeyViolation(err) {
				return nil, ErrServerNotFound
			}
			if postgres.IsUniqueViolation(err) && attempt < maxCodeRetries-1 {
				continue
			}
			if postgres.IsUniqueViolation(err) {
				return nil, ErrCodeExhausted
			}
			return nil, fmt.Errorf("insert invite: %w", err)
		}
		return inv, nil
	}

	return nil, ErrCodeExhausted
}

// GetByCode returns the invite matching the given code.
func (r *PGRepository) GetByCode(ctx context.Context, code string) (*Invite, error) {
	inv, err := scanInvite(r.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM server_invites WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query invite by code: %w", err)
	}
	return inv, nil
}

// ListByServer returns every invite belonging to the given server, ordered by creation time descending.
func (r *PGRepository) ListByServer(ctx context.Context, serverID uuid.UUID) ([]Invite, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+` FROM server_invites WHERE server_id = $1 ORDER BY created_at DESC`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query invites of server: %w", err)
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

// scanInvite scans a single row into an *Invite.
func scanInvite(row pgx.Row) (*Invite, error) {
	var inv Invite
	if err := row.Scan(&inv.ID, &inv.ServerID, &inv.Code, &inv.CreatorID, &inv.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	return &inv, nil
}

// generateCode produces a cryptographically random alphanumeric string of codeLength characters.
func generateCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("crypto/rand: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
