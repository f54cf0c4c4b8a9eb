package question

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/postgres"
)

type AssignerConfig struct {
	DB *pgxpool.Pool
	// IntN returns a uniform random number in [0, n). Defaults to math/rand/v2.IntN.
	IntN func(n int) int
}

// Assigner hands out the questions a session has not answered yet.
type Assigner struct {
	db   *pgxpool.Pool
	intN func(n int) int
}

func NewAssigner(c AssignerConfig) *Assigner {
	a := &Assigner{
		db:   c.DB,
		intN: c.IntN,
	}

	if a.intN == nil {
		a.intN = rand.IntN
	}

	return a
}

// UnansweredFor returns target - solved_count question ids that have no answer
// in the session, in uniformly random order. When fewer are left, all of them
// are returned.
func (a *Assigner) UnansweredFor(ctx context.Context, sessionID string, target int) ([]int64, error) {
	if target <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("target must be positive: %d", target))
	}

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, domain.ErrInvalidSessionID.With(errors.WithCause(err))
	}

	var (
		solved int
		ids    []int64
	)

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err = postgres.WithTx(ctx, a.db, opts, func(tx pgx.Tx) error {
		const solvedStmt = `SELECT solved_count FROM sessions WHERE session_id = $1;`

		err := tx.QueryRow(ctx, solvedStmt, id).Scan(&solved)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUnknownSession.With(errors.WithMessagef("session not found: %s", sessionID))
		}
		if err != nil {
			return postgres.Classify(fmt.Errorf("get solved count: %w", err))
		}

		const unansweredStmt = `
SELECT q.question_id
FROM questions q
WHERE NOT EXISTS (
	SELECT 1 FROM answers a
	WHERE a.session_id = $1 AND a.question_id = q.question_id
);`

		rows, err := tx.Query(ctx, unansweredStmt, id)
		if err != nil {
			return postgres.Classify(fmt.Errorf("get unanswered questions: %w", err))
		}

		ids, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return postgres.Classify(fmt.Errorf("collect unanswered questions: %w", err))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return pick(ids, target-solved, a.intN), nil
}

// pick returns n elements of ids drawn without replacement, uniformly
// permuted. ids is reordered in place.
func pick(ids []int64, n int, intN func(int) int) []int64 {
	n = min(max(n, 0), len(ids))

	// Partial Fisher-Yates: position i receives a uniform draw from the tail.
	for i := 0; i < n; i++ {
		j := i + intN(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}

	return ids[:n]
}
