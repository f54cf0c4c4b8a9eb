package session

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/postgres"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service owns the single active session of every player.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

const sessionColumns = `session_id, player_id, start_time, end_time, solved_count, is_completed, is_active`

// GetOrCreateActiveSession returns the active session of the player, creating
// it when there is none. created reports whether a new session was inserted.
// Concurrent calls for the same player serialize on the player row, so only
// one of them can insert.
func (s *Service) GetOrCreateActiveSession(ctx context.Context, playerID int64) (ss *domain.Session, created bool, err error) {
	if playerID <= 0 {
		return nil, false, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid player id: %d", playerID))
	}

	err = postgres.WithTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		const lockPlayerStmt = `SELECT player_id FROM players WHERE player_id = $1 FOR NO KEY UPDATE;`

		var id int64
		err := tx.QueryRow(ctx, lockPlayerStmt, playerID).Scan(&id)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUnknownPlayer.With(errors.WithMessagef("player not found: %d", playerID))
		}
		if err != nil {
			return postgres.Classify(fmt.Errorf("lock player: %w", err))
		}

		ss, err = FindActive(ctx, tx, playerID)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, domain.ErrNoActiveSession) {
			return err
		}

		ss, err = s.insertSession(ctx, tx, playerID)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return ss, created, nil
}

func (s *Service) insertSession(ctx context.Context, tx pgx.Tx, playerID int64) (*domain.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	const insSessionStmt = `
INSERT INTO sessions (session_id, player_id, solved_count, is_completed, is_active)
VALUES ($1, $2, 0, FALSE, TRUE)
RETURNING ` + sessionColumns + `;`

	ss, err := scanSession(tx.QueryRow(ctx, insSessionStmt, id, playerID))
	if postgres.IsCode(err, postgres.CodeUniqueViolation) {
		// The partial unique index caught a writer that bypassed the player lock.
		return nil, domain.ErrStoreUnavailable.With(
			errors.WithCause(err),
			errors.WithMessagef("concurrent session creation: player=%d", playerID),
		)
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("insert session: %w", err))
	}

	return ss, nil
}

// ActiveSession returns the active session of the player without creating one.
func (s *Service) ActiveSession(ctx context.Context, playerID int64) (*domain.Session, error) {
	return FindActive(ctx, s.db, playerID)
}

// Deactivate marks the session inactive without completing it.
func (s *Service) Deactivate(ctx context.Context, sessionID string) error {
	id, err := ParseID(sessionID)
	if err != nil {
		return err
	}

	const stmt = `UPDATE sessions SET is_active = FALSE WHERE session_id = $1 AND is_active;`

	tag, err := s.db.Exec(ctx, stmt, id)
	if err != nil {
		return postgres.Classify(fmt.Errorf("deactivate session: %w", err))
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownSession.With(errors.WithMessagef("no active session: session=%s", sessionID))
	}

	return nil
}

type ResetResponse struct {
	SessionID      string
	DeletedAnswers int64
}

// ResetPlayer deletes the answers of the active session and deactivates it,
// both in one transaction.
func (s *Service) ResetPlayer(ctx context.Context, playerID int64) (*ResetResponse, error) {
	var resp ResetResponse

	err := postgres.WithTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ss, err := LockActive(ctx, tx, playerID)
		if err != nil {
			return err
		}
		resp.SessionID = ss.SessionID

		const (
			delAnswersStmt = `DELETE FROM answers WHERE player_id = $1 AND session_id = $2;`
			deactivateStmt = `UPDATE sessions SET is_active = FALSE WHERE session_id = $1;`
		)

		tag, err := tx.Exec(ctx, delAnswersStmt, playerID, ss.SessionID)
		if err != nil {
			return postgres.Classify(fmt.Errorf("delete answers: %w", err))
		}
		resp.DeletedAnswers = tag.RowsAffected()

		if _, err := tx.Exec(ctx, deactivateStmt, ss.SessionID); err != nil {
			return postgres.Classify(fmt.Errorf("deactivate session: %w", err))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// Querier is satisfied by both the pool and a transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FindActive reads the active session of the player.
func FindActive(ctx context.Context, q Querier, playerID int64) (*domain.Session, error) {
	const stmt = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE player_id = $1 AND is_active AND NOT is_completed;`

	ss, err := scanSession(q.QueryRow(ctx, stmt, playerID))
	return activeOrErr(ss, err, playerID)
}

// LockActive reads and row-locks the active session of the player for the
// rest of tx.
func LockActive(ctx context.Context, tx pgx.Tx, playerID int64) (*domain.Session, error) {
	const stmt = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE player_id = $1 AND is_active AND NOT is_completed
FOR UPDATE;`

	ss, err := scanSession(tx.QueryRow(ctx, stmt, playerID))
	return activeOrErr(ss, err, playerID)
}

func activeOrErr(ss *domain.Session, err error, playerID int64) (*domain.Session, error) {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveSession.With(errors.WithMessagef("no active session: player=%d", playerID))
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get active session: %w", err))
	}

	return ss, nil
}

// LockActiveByID row-locks sessionID if it is the active session of the
// player, and fails with ErrUnknownSession otherwise.
func LockActiveByID(ctx context.Context, tx pgx.Tx, playerID int64, sessionID string) (*domain.Session, error) {
	id, err := ParseID(sessionID)
	if err != nil {
		return nil, err
	}

	const stmt = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE session_id = $1 AND player_id = $2 AND is_active AND NOT is_completed
FOR UPDATE;`

	ss, err := scanSession(tx.QueryRow(ctx, stmt, id, playerID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownSession.With(
			errors.WithMessagef("not the active session of the player: session=%s player=%d", sessionID, playerID))
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("lock session: %w", err))
	}

	return ss, nil
}

// ParseID validates a session id.
func ParseID(sessionID string) (uuid.UUID, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidSessionID.With(
			errors.WithCause(err),
			errors.WithMessagef("invalid session id: %q", sessionID),
		)
	}

	return id, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		ss domain.Session
		id uuid.UUID
	)

	if err := row.Scan(&id, &ss.PlayerID, &ss.StartTime, &ss.EndTime, &ss.SolvedCount, &ss.IsCompleted, &ss.IsActive); err != nil {
		return nil, err
	}
	ss.SessionID = id.String()

	return &ss, nil
}
