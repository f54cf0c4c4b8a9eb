package player

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/postgres"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service keeps the player identities the engine references. Credentials
// live elsewhere.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type RegisterRequest struct {
	Username string
	Email    string
}

// Register creates a player. Username and email must be unique.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Player, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > 50 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username must be between 1 and 50 characters"))
	}

	var email *string
	if e := strings.TrimSpace(req.Email); e != "" {
		email = &e
	}

	const stmt = `
INSERT INTO players (username, email)
VALUES ($1, $2)
RETURNING player_id, created_at;`

	p := &domain.Player{Username: username, Email: req.Email}
	err := s.db.QueryRow(ctx, stmt, username, email).Scan(&p.PlayerID, &p.CreatedAt)
	if postgres.IsCode(err, postgres.CodeUniqueViolation) {
		return nil, domain.ErrPlayerExists.With(
			errors.WithCause(err),
			errors.WithMessagef("player already exists: username=%s", username),
		)
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("insert player: %w", err))
	}

	return p, nil
}

// Get returns the player by id.
func (s *Service) Get(ctx context.Context, playerID int64) (*domain.Player, error) {
	return s.get(ctx, `WHERE player_id = $1`, playerID)
}

// GetByUsername returns the player by its unique username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*domain.Player, error) {
	return s.get(ctx, `WHERE username = $1`, username)
}

func (s *Service) get(ctx context.Context, where string, arg any) (*domain.Player, error) {
	stmt := `SELECT player_id, username, COALESCE(email, ''), created_at FROM players ` + where

	var p domain.Player
	err := s.db.QueryRow(ctx, stmt, arg).Scan(&p.PlayerID, &p.Username, &p.Email, &p.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownPlayer.With(errors.WithMessagef("player not found: %v", arg))
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get player: %w", err))
	}

	return &p, nil
}
