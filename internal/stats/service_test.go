//go:build integration_test

package stats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/answer"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/postgres/pgtest"
	"github.com/victornm/trivia/internal/question"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/stats"
)

func TestService(t *testing.T) {
	db := pgtest.NewPool(t)
	ctx := context.Background()
	pgtest.SeedQuestions(t, db, 4, pgtest.AlwaysA)

	sessions := session.NewService(session.Config{DB: db})
	answers := answer.NewService(answer.Config{DB: db, Questions: question.NewPostgresStore(db)})

	play := func(username string, picks map[int64]string) int64 {
		p := pgtest.SeedPlayer(t, db, username)
		ss, _, err := sessions.GetOrCreateActiveSession(ctx, p)
		require.NoError(t, err)
		for q := int64(1); q <= 4; q++ {
			l, ok := picks[q]
			if !ok {
				continue
			}
			_, err := answers.Record(ctx, answer.RecordRequest{PlayerID: p, SessionID: ss.SessionID, QuestionID: q, Selected: l})
			require.NoError(t, err)
		}
		return p
	}

	// Question 1 is answered correctly three times, 2 and 3 once each, 4 never.
	alice := play("alice", map[int64]string{1: "a", 2: "a", 3: "b", 4: "b"})
	play("bob", map[int64]string{1: "a", 3: "a"})
	play("carol", map[int64]string{1: "a"})
	idle := pgtest.SeedPlayer(t, db, "dave")

	s := stats.NewService(stats.Config{DB: db})

	t.Run("should count players", func(t *testing.T) {
		n, err := s.TotalPlayers(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 4, n)
	})

	t.Run("should find the most correctly answered question", func(t *testing.T) {
		got, err := s.MostCorrectlyAnswered(ctx)
		require.NoError(t, err)
		assert.Equal(t, []stats.QuestionCorrectCount{{QuestionID: 1, CorrectCount: 3}}, got)
	})

	t.Run("should return every question tied for least correct", func(t *testing.T) {
		got, err := s.LeastCorrectlyAnswered(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []stats.QuestionCorrectCount{
			{QuestionID: 2, CorrectCount: 1},
			{QuestionID: 3, CorrectCount: 1},
		}, got)
	})

	t.Run("should rank players by correct answers", func(t *testing.T) {
		got, err := s.PlayersByCorrectAnswers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []stats.PlayerCount{
			{Username: "alice", Count: 2},
			{Username: "bob", Count: 2},
			{Username: "carol", Count: 1},
		}, got)
	})

	t.Run("should rank players by total answers", func(t *testing.T) {
		got, err := s.PlayersByTotalAnswers(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, stats.PlayerCount{Username: "alice", Count: 4}, got[0])
	})

	t.Run("should split correct and incorrect answers per question", func(t *testing.T) {
		got, err := s.QuestionAnswerStats(ctx)
		require.NoError(t, err)
		assert.Contains(t, got, stats.QuestionStats{QuestionID: 3, Total: 2, Correct: 1, Incorrect: 1})
	})

	t.Run("should list the answers of a player", func(t *testing.T) {
		got, err := s.PlayerAnswers(ctx, alice)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, int64(1), got[0].QuestionID)

		none, err := s.PlayerAnswers(ctx, idle)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("should share answered and correct answers of a player", func(t *testing.T) {
		answered, err := s.PlayerAnsweredVsUnanswered(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, stats.AnsweredShare{Answered: 4, Unanswered: 0}, *answered)

		correct, err := s.PlayerCorrectVsIncorrect(ctx, alice)
		require.NoError(t, err)
		assert.EqualValues(t, 2, correct.Correct)
		assert.EqualValues(t, 2, correct.Incorrect)
		assert.Equal(t, "50", correct.Accuracy.String())
	})

	t.Run("should report the active session", func(t *testing.T) {
		got, err := s.SessionAnswerStats(ctx, alice)
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.Correct)
		assert.EqualValues(t, 2, got.Incorrect)
		assert.Equal(t, domain.QuestionsPerSession-4, got.Remaining)

		_, err = s.SessionAnswerStats(ctx, idle)
		assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	})
}
