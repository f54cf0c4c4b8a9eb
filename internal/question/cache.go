package question

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/trivia/internal/domain"
)

// CachedStore serves questions from Redis and falls back to the backing store
// on a miss. Each question is a JSON value at <prefix>:question:<id>.
// Question content never changes once loaded, so entries only expire.
type CachedStore struct {
	redis   redis.UniversalClient
	backing Store
	prefix  string
	ttl     time.Duration
	sf      singleflight.Group
}

type CacheConfig struct {
	Redis   redis.UniversalClient
	Backing Store
	Prefix  string
	TTL     time.Duration
}

func NewCachedStore(c CacheConfig) *CachedStore {
	return &CachedStore{
		redis:   c.Redis,
		backing: c.Backing,
		prefix:  c.Prefix,
		ttl:     c.TTL,
	}
}

func (s *CachedStore) AnswerKey(ctx context.Context, questionID int64) (domain.Letter, error) {
	qq, err := s.BulkFetch(ctx, []int64{questionID})
	if err != nil {
		return "", err
	}

	if len(qq) == 0 {
		// Let the backing store produce its own not-found error.
		return s.backing.AnswerKey(ctx, questionID)
	}

	return qq[0].CorrectLetter, nil
}

func (s *CachedStore) BulkFetch(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	found := make(map[int64]domain.Question, len(ids))
	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		// A cache outage degrades to the backing store.
		slog.WarnContext(ctx, "question: cache read failed", "error", err)
		vals = make([]any, len(ids))
	}

	var missing []int64
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}

		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[q.QuestionID] = q
	}

	if len(missing) > 0 {
		loaded, err := s.load(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, q := range loaded {
			found[q.QuestionID] = q
		}
	}

	out := make([]domain.Question, 0, len(found))
	for _, id := range ids {
		if q, ok := found[id]; ok {
			out = append(out, q)
		}
	}

	return out, nil
}

func (s *CachedStore) load(ctx context.Context, ids []int64) ([]domain.Question, error) {
	res, err, _ := s.sf.Do(sfKey(ids), func() (any, error) {
		qq, err := s.backing.BulkFetch(ctx, ids)
		if err != nil {
			return nil, err
		}

		pipe := s.redis.Pipeline()
		for _, q := range qq {
			b, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("marshal question %d: %w", q.QuestionID, err)
			}
			pipe.Set(ctx, s.key(q.QuestionID), b, s.ttlWithJitter())
		}
		if _, err := pipe.Exec(ctx); err != nil {
			slog.WarnContext(ctx, "question: cache fill failed", "error", err)
		}

		return qq, nil
	})
	if err != nil {
		return nil, err
	}

	return res.([]domain.Question), nil
}

func (s *CachedStore) key(id int64) string {
	return fmt.Sprintf("%s:question:%d", s.prefix, id)
}

func (s *CachedStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}

	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(rand.Int64N(jitterMax+1))
}

func sfKey(ids []int64) string {
	b := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		b = strconv.AppendInt(b, id, 10)
		b = append(b, ',')
	}

	return string(b)
}
