package question

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/postgres"
)

// Store is the question content store. The engine only grades with AnswerKey;
// BulkFetch hands content back to the presentation layer.
type Store interface {
	AnswerKey(ctx context.Context, questionID int64) (domain.Letter, error)
	BulkFetch(ctx context.Context, ids []int64) ([]domain.Question, error)
}

// PostgresStore reads questions from the questions table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AnswerKey(ctx context.Context, questionID int64) (domain.Letter, error) {
	const stmt = `SELECT correct_answer FROM questions WHERE question_id = $1;`

	var l string
	err := s.db.QueryRow(ctx, stmt, questionID).Scan(&l)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrUnknownQuestion.With(errors.WithMessagef("question not found: %d", questionID))
	}
	if err != nil {
		return "", postgres.Classify(fmt.Errorf("get answer key: %w", err))
	}

	return domain.Letter(l), nil
}

// BulkFetch returns the questions in the order of ids. Unknown ids are skipped.
func (s *PostgresStore) BulkFetch(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const stmt = `
SELECT question_id, question_text, answer_a, answer_b, answer_c, answer_d, correct_answer
FROM questions
WHERE question_id = ANY($1);`

	rows, err := s.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("fetch questions: %w", err))
	}

	qq, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q domain.Question
			l string
		)
		if err := r.Scan(&q.QuestionID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &l); err != nil {
			return domain.Question{}, err
		}
		q.CorrectLetter = domain.Letter(l)
		return q, nil
	})
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("collect questions: %w", err))
	}

	return inOrder(ids, qq), nil
}

func inOrder(ids []int64, qq []domain.Question) []domain.Question {
	byID := make(map[int64]domain.Question, len(qq))
	for _, q := range qq {
		byID[q.QuestionID] = q
	}

	out := make([]domain.Question, 0, len(qq))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}

	return out
}
