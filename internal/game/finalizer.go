package game

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/postgres"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/telemetry"
)

type FinalizerConfig struct {
	DB     *pgxpool.Pool
	Target int
}

// Finalizer completes sessions that reached the target.
type Finalizer struct {
	db     *pgxpool.Pool
	target int
}

func NewFinalizer(c FinalizerConfig) *Finalizer {
	f := &Finalizer{
		db:     c.DB,
		target: c.Target,
	}

	if f.target <= 0 {
		f.target = domain.QuestionsPerSession
	}

	return f
}

// Finalize marks the active session of the player completed and inactive,
// with end_time set to its latest answer. A second call finds no active
// session and fails with domain.ErrNoActiveSession.
func (f *Finalizer) Finalize(ctx context.Context, playerID int64) (*domain.GameResult, error) {
	var res domain.GameResult

	start := time.Now()
	err := postgres.WithTx(ctx, f.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ss, err := session.LockActive(ctx, tx, playerID)
		if err != nil {
			return err
		}

		if ss.SolvedCount < f.target {
			return domain.ErrSessionIncomplete.With(
				errors.WithMessagef("session has %d of %d answers: session=%s", ss.SolvedCount, f.target, ss.SessionID))
		}

		const completeStmt = `
UPDATE sessions
SET is_completed = TRUE,
	is_active = FALSE,
	end_time = (SELECT MAX(answered_at) FROM answers WHERE player_id = $1 AND session_id = $2)
WHERE session_id = $2
RETURNING end_time;`

		var end time.Time
		if err := tx.QueryRow(ctx, completeStmt, playerID, ss.SessionID).Scan(&end); err != nil {
			return postgres.Classify(fmt.Errorf("complete session: %w", err))
		}

		const countStmt = `
SELECT COUNT(*)
FROM answers
WHERE player_id = $1 AND session_id = $2 AND is_correct;`

		var correct int
		if err := tx.QueryRow(ctx, countStmt, playerID, ss.SessionID).Scan(&correct); err != nil {
			return postgres.Classify(fmt.Errorf("count correct answers: %w", err))
		}

		res = domain.GameResult{
			SessionID:    ss.SessionID,
			PlayerID:     playerID,
			CorrectCount: correct,
			Elapsed:      end.Sub(ss.StartTime),
			EndTime:      end,
		}

		return nil
	})
	telemetry.ObserveTx("finalize", start, err)
	if err != nil {
		return nil, err
	}

	telemetry.SessionsCompleted.Inc()
	return &res, nil
}
