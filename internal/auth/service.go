package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/config"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// Service implements registration and login on top of the user repository. Token verification lives in jwt.go and is
// shared with the gateway's Identify path.
type Service struct {
	users user.Repository
	cfg   *config.Config
	log   zerolog.Logger
}

// NewService creates a new authentication service.
func NewService(users user.Repository, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{users: users, cfg: cfg, log: logger.With().Str("component", "auth").Logger()}
}

// Register validates the inputs, hashes the password, and creates the user. The email is normalized to lower case
// before the uniqueness check so the same address cannot register twice with different casing.
func (s *Service) Register(ctx context.Context, username, email, password string) (*user.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password,
		s.cfg.Argon2Memory, s.cfg.Argon2Iterations, s.cfg.Argon2Parallelism,
		s.cfg.Argon2SaltLength, s.cfg.Argon2KeyLength)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, user.CreateParams{
		Username:     username,
		Email:        normalized,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			return nil, ErrEmailAlreadyTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Stringer("user_id", u.ID).Msg("User registered")
	return u, nil
}

// Login verifies the credentials and returns a signed access token. A missing user and a wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	match, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return "", ErrInvalidCredentials
	}

	token, err := NewAccessToken(u.ID, s.cfg.Application.JWTSecret, s.cfg.JWTAccessTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	s.log.Debug().Stringer("user_id", u.ID).Msg("User logged in")
	return token, nil
}
