package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/postgres"
	"github.com/victornm/trivia/internal/session"
)

type Config struct {
	DB *pgxpool.Pool
	// Target is the number of answers that completes a session.
	Target int
}

// Service answers read-only questions about recorded play. Results may be
// slightly stale under concurrent writes.
type Service struct {
	db     *pgxpool.Pool
	target int
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB, target: c.Target}
	if s.target <= 0 {
		s.target = domain.QuestionsPerSession
	}
	return s
}

type (
	QuestionCorrectCount struct {
		QuestionID   int64 `json:"question_id"`
		CorrectCount int64 `json:"correct_count"`
	}

	PlayerCount struct {
		Username string `json:"username"`
		Count    int64  `json:"count"`
	}

	PlayerAnswer struct {
		QuestionID int64     `json:"question_id"`
		IsCorrect  bool      `json:"is_correct"`
		AnsweredAt time.Time `json:"answered_at"`
	}

	QuestionStats struct {
		QuestionID int64 `json:"question_id"`
		Total      int64 `json:"total"`
		Correct    int64 `json:"correct"`
		Incorrect  int64 `json:"incorrect"`
	}

	AnsweredShare struct {
		Answered   int64 `json:"answered"`
		Unanswered int64 `json:"unanswered"`
	}

	CorrectShare struct {
		Correct   int64 `json:"correct"`
		Incorrect int64 `json:"incorrect"`
		// Accuracy is the percentage of correct answers, rounded to 2 places.
		Accuracy decimal.Decimal `json:"accuracy"`
	}

	SessionStats struct {
		SessionID string `json:"session_id"`
		Correct   int64  `json:"correct"`
		Incorrect int64  `json:"incorrect"`
		Remaining int    `json:"remaining"`
	}
)

func (s *Service) TotalPlayers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM players;`).Scan(&n); err != nil {
		return 0, postgres.Classify(fmt.Errorf("count players: %w", err))
	}
	return n, nil
}

// Only questions answered correctly at least once take part in the ranking
// of MostCorrectlyAnswered and LeastCorrectlyAnswered.
const correctlyAnsweredStmt = `
WITH counts AS (
	SELECT question_id, COUNT(*) AS correct_count
	FROM answers
	WHERE is_correct
	GROUP BY question_id
)
SELECT question_id, correct_count
FROM counts
WHERE correct_count = (SELECT %s(correct_count) FROM counts)
ORDER BY question_id;`

// MostCorrectlyAnswered returns every question tied for the highest number of
// correct answers.
func (s *Service) MostCorrectlyAnswered(ctx context.Context) ([]QuestionCorrectCount, error) {
	return s.correctlyAnswered(ctx, "MAX")
}

// LeastCorrectlyAnswered returns every question tied for the lowest number of
// correct answers. A question nobody answered correctly is not included.
func (s *Service) LeastCorrectlyAnswered(ctx context.Context) ([]QuestionCorrectCount, error) {
	return s.correctlyAnswered(ctx, "MIN")
}

func (s *Service) correctlyAnswered(ctx context.Context, agg string) ([]QuestionCorrectCount, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(correctlyAnsweredStmt, agg))
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get correctly answered questions: %w", err))
	}

	return collect[QuestionCorrectCount](rows)
}

// PlayersByCorrectAnswers ranks players who answered correctly at least once.
func (s *Service) PlayersByCorrectAnswers(ctx context.Context) ([]PlayerCount, error) {
	const stmt = `
SELECT p.username, COUNT(*) AS correct_answers
FROM answers a
JOIN players p ON p.player_id = a.player_id
WHERE a.is_correct
GROUP BY p.username
ORDER BY correct_answers DESC, p.username;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get players by correct answers: %w", err))
	}

	return collect[PlayerCount](rows)
}

// PlayersByTotalAnswers ranks players who answered at least once.
func (s *Service) PlayersByTotalAnswers(ctx context.Context) ([]PlayerCount, error) {
	const stmt = `
SELECT p.username, COUNT(*) AS total_answers
FROM answers a
JOIN players p ON p.player_id = a.player_id
GROUP BY p.username
ORDER BY total_answers DESC, p.username;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get players by total answers: %w", err))
	}

	return collect[PlayerCount](rows)
}

// PlayerAnswers lists every answer of the player across sessions, oldest first.
func (s *Service) PlayerAnswers(ctx context.Context, playerID int64) ([]PlayerAnswer, error) {
	const stmt = `
SELECT question_id, is_correct, answered_at
FROM answers
WHERE player_id = $1
ORDER BY answered_at, question_id;`

	rows, err := s.db.Query(ctx, stmt, playerID)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get player answers: %w", err))
	}

	return collect[PlayerAnswer](rows)
}

// QuestionAnswerStats returns per question totals, most answered first.
func (s *Service) QuestionAnswerStats(ctx context.Context) ([]QuestionStats, error) {
	const stmt = `
SELECT
	question_id,
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE is_correct) AS correct,
	COUNT(*) FILTER (WHERE NOT is_correct) AS incorrect
FROM answers
GROUP BY question_id
ORDER BY total DESC, question_id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get question stats: %w", err))
	}

	return collect[QuestionStats](rows)
}

// PlayerAnsweredVsUnanswered counts the distinct questions the player has
// ever answered against the rest of the question pool.
func (s *Service) PlayerAnsweredVsUnanswered(ctx context.Context, playerID int64) (*AnsweredShare, error) {
	const stmt = `
SELECT
	answered.n,
	GREATEST((SELECT COUNT(*) FROM questions) - answered.n, 0)
FROM (
	SELECT COUNT(DISTINCT question_id) AS n FROM answers WHERE player_id = $1
) answered;`

	var out AnsweredShare
	if err := s.db.QueryRow(ctx, stmt, playerID).Scan(&out.Answered, &out.Unanswered); err != nil {
		return nil, postgres.Classify(fmt.Errorf("get answered share: %w", err))
	}

	return &out, nil
}

func (s *Service) PlayerCorrectVsIncorrect(ctx context.Context, playerID int64) (*CorrectShare, error) {
	const stmt = `
SELECT
	COUNT(*) FILTER (WHERE is_correct),
	COUNT(*) FILTER (WHERE NOT is_correct)
FROM answers
WHERE player_id = $1;`

	var out CorrectShare
	if err := s.db.QueryRow(ctx, stmt, playerID).Scan(&out.Correct, &out.Incorrect); err != nil {
		return nil, postgres.Classify(fmt.Errorf("get correct share: %w", err))
	}
	out.Accuracy = Accuracy(out.Correct, out.Incorrect)

	return &out, nil
}

// SessionAnswerStats reports the progress of the player's active session.
func (s *Service) SessionAnswerStats(ctx context.Context, playerID int64) (*SessionStats, error) {
	ss, err := session.FindActive(ctx, s.db, playerID)
	if err != nil {
		return nil, err
	}

	const stmt = `
SELECT
	COUNT(*) FILTER (WHERE is_correct),
	COUNT(*) FILTER (WHERE NOT is_correct)
FROM answers
WHERE player_id = $1 AND session_id = $2;`

	out := SessionStats{
		SessionID: ss.SessionID,
		Remaining: ss.Remaining(s.target),
	}
	if err := s.db.QueryRow(ctx, stmt, playerID, ss.SessionID).Scan(&out.Correct, &out.Incorrect); err != nil {
		return nil, postgres.Classify(fmt.Errorf("get session stats: %w", err))
	}

	return &out, nil
}

// Accuracy returns correct / (correct + incorrect) as a percentage rounded to
// 2 places, or zero when nothing was answered.
func Accuracy(correct, incorrect int64) decimal.Decimal {
	total := correct + incorrect
	if total <= 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(correct).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(total), 2)
}

// collect scans rows positionally into T. It keeps the result non-nil so
// empty lists encode as [].
func collect[T any](rows pgx.Rows) ([]T, error) {
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[T])
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("collect rows: %w", err))
	}

	if out == nil {
		out = []T{}
	}

	return out, nil
}
