package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/postgres"
	"github.com/victornm/trivia/internal/question"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/telemetry"
)

type Config struct {
	DB        *pgxpool.Pool
	Questions question.Store
	// Target is the number of answers that fills a session. Defaults to domain.QuestionsPerSession.
	Target int
}

type Service struct {
	db        *pgxpool.Pool
	questions question.Store
	target    int
}

func NewService(c Config) *Service {
	s := &Service{
		db:        c.DB,
		questions: c.Questions,
		target:    c.Target,
	}

	if s.target <= 0 {
		s.target = domain.QuestionsPerSession
	}

	return s
}

type RecordRequest struct {
	PlayerID   int64
	SessionID  string
	QuestionID int64
	Selected   string
}

type RecordResponse struct {
	IsCorrect     bool
	CorrectLetter domain.Letter
	SolvedCount   int
	AnsweredAt    time.Time
}

// Record grades and stores one answer of the player's active session. The
// insert and the recount of solved_count commit together, so solved_count is
// always the number of answer rows of the session.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*RecordResponse, error) {
	selected, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	correct, err := s.questions.AnswerKey(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}

	resp := &RecordResponse{
		IsCorrect:     selected == correct,
		CorrectLetter: correct,
	}

	start := time.Now()
	err = postgres.WithTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ss, err := session.LockActiveByID(ctx, tx, req.PlayerID, req.SessionID)
		if err != nil {
			return err
		}

		if ss.SolvedCount >= s.target {
			return domain.ErrSessionFull.With(
				errors.WithMessagef("session already has %d answers: session=%s", ss.SolvedCount, req.SessionID))
		}

		resp.AnsweredAt, err = s.insertAnswer(ctx, tx, req, selected, resp.IsCorrect)
		if err != nil {
			return err
		}

		resp.SolvedCount, err = recountSolved(ctx, tx, req.PlayerID, req.SessionID)
		return err
	})
	telemetry.ObserveTx("record_answer", start, err)
	if err != nil {
		return nil, err
	}

	telemetry.AnswersRecorded.WithLabelValues(resultLabel(resp.IsCorrect)).Inc()
	return resp, nil
}

func (s *Service) validate(req RecordRequest) (domain.Letter, error) {
	if req.PlayerID <= 0 {
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid player id: %d", req.PlayerID))
	}

	if req.QuestionID <= 0 {
		return "", domain.ErrUnknownQuestion.With(errors.WithMessagef("invalid question id: %d", req.QuestionID))
	}

	if _, err := session.ParseID(req.SessionID); err != nil {
		return "", err
	}

	l, ok := domain.ParseLetter(req.Selected)
	if !ok {
		return "", domain.ErrInvalidLetter.With(errors.WithMessagef("invalid answer letter: %q", req.Selected))
	}

	return l, nil
}

func (s *Service) insertAnswer(ctx context.Context, tx pgx.Tx, req RecordRequest, selected domain.Letter, correct bool) (time.Time, error) {
	const stmt = `
INSERT INTO answers (player_id, question_id, session_id, selected_letter, is_correct)
VALUES ($1, $2, $3, $4, $5)
RETURNING answered_at;`

	var at time.Time
	err := tx.QueryRow(ctx, stmt, req.PlayerID, req.QuestionID, req.SessionID, string(selected), correct).Scan(&at)

	switch {
	case err == nil:
		return at, nil
	case postgres.IsCode(err, postgres.CodeUniqueViolation):
		return time.Time{}, domain.ErrDuplicateAnswer.With(
			errors.WithCause(err),
			errors.WithMessagef("answer is already recorded: session=%s player=%d question=%d", req.SessionID, req.PlayerID, req.QuestionID),
		)
	case postgres.IsCode(err, postgres.CodeForeignKeyViolation):
		return time.Time{}, domain.ErrUnknownQuestion.With(
			errors.WithCause(err),
			errors.WithMessagef("question not found: %d", req.QuestionID),
		)
	default:
		return time.Time{}, postgres.Classify(fmt.Errorf("insert answer: %w", err))
	}
}

// recountSolved sets solved_count to the live number of answers of the session.
func recountSolved(ctx context.Context, tx pgx.Tx, playerID int64, sessionID string) (int, error) {
	const stmt = `
UPDATE sessions
SET solved_count = (
	SELECT COUNT(*) FROM answers WHERE player_id = $1 AND session_id = $2
)
WHERE session_id = $2
RETURNING solved_count;`

	var n int
	if err := tx.QueryRow(ctx, stmt, playerID, sessionID).Scan(&n); err != nil {
		return 0, postgres.Classify(fmt.Errorf("recount solved: %w", err))
	}

	return n, nil
}

func resultLabel(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}
