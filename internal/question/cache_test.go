package question_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/question"
)

func TestCachedStore_BulkFetch(t *testing.T) {
	backing := newFakeStore(
		domain.Question{QuestionID: 1, Text: "2 + 2?", OptionA: "3", OptionB: "4", CorrectLetter: domain.LetterB},
		domain.Question{QuestionID: 2, Text: "Capital of France?", OptionA: "Paris", CorrectLetter: domain.LetterA},
		domain.Question{QuestionID: 3, Text: "H2O?", OptionC: "Water", CorrectLetter: domain.LetterC},
	)
	s, mr := makeCachedStore(t, backing)
	ctx := context.Background()

	got, err := s.BulkFetch(ctx, []int64{3, 1, 99})
	require.NoError(t, err)
	require.Len(t, got, 2, "unknown ids are skipped")
	assert.Equal(t, int64(3), got[0].QuestionID, "order of ids is kept")
	assert.Equal(t, int64(1), got[1].QuestionID)
	assert.Equal(t, 1, backing.callCount())
	assert.True(t, mr.Exists("test:question:1"))
	assert.True(t, mr.Exists("test:question:3"))

	got, err = s.BulkFetch(ctx, []int64{1, 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2 + 2?", got[0].Text)
	assert.Equal(t, 1, backing.callCount(), "second fetch should be served from redis")

	ttl := mr.TTL("test:question:1")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.LessOrEqual(t, ttl, time.Minute+6*time.Second)
}

func TestCachedStore_AnswerKey(t *testing.T) {
	backing := newFakeStore(domain.Question{QuestionID: 7, CorrectLetter: domain.LetterD})
	s, _ := makeCachedStore(t, backing)
	ctx := context.Background()

	l, err := s.AnswerKey(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.LetterD, l)

	_, err = s.AnswerKey(ctx, 8)
	require.ErrorIs(t, err, domain.ErrUnknownQuestion)
	assert.True(t, errors.IsValidation(err))
}

func TestCachedStore_RedisDown(t *testing.T) {
	backing := newFakeStore(domain.Question{QuestionID: 1, CorrectLetter: domain.LetterA})
	s, mr := makeCachedStore(t, backing)
	mr.Close()

	got, err := s.BulkFetch(context.Background(), []int64{1})
	require.NoError(t, err, "cache outage should fall back to the backing store")
	require.Len(t, got, 1)
}

func makeCachedStore(t *testing.T, backing question.Store) (*question.CachedStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{mr.Addr()},
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = rc.Close() })

	return question.NewCachedStore(question.CacheConfig{
		Redis:   rc,
		Backing: backing,
		Prefix:  "test",
		TTL:     time.Minute,
	}), mr
}

type fakeStore struct {
	mu    sync.Mutex
	calls int
	qs    map[int64]domain.Question
}

func newFakeStore(qq ...domain.Question) *fakeStore {
	s := &fakeStore{qs: make(map[int64]domain.Question)}
	for _, q := range qq {
		s.qs[q.QuestionID] = q
	}
	return s
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) AnswerKey(_ context.Context, id int64) (domain.Letter, error) {
	q, ok := s.qs[id]
	if !ok {
		return "", domain.ErrUnknownQuestion
	}
	return q.CorrectLetter, nil
}

func (s *fakeStore) BulkFetch(_ context.Context, ids []int64) ([]domain.Question, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	var out []domain.Question
	for _, id := range ids {
		if q, ok := s.qs[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}
