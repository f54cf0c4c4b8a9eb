package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
)

// Sink receives audit entries. It is write-only for the engine.
type Sink interface {
	Record(ctx context.Context, e domain.AuditEntry) error
}

type StreamConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	// MaxLen caps the stream length approximately. Zero keeps everything.
	MaxLen int64
}

// RedisStreamSink appends entries to the <prefix>:audit stream.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStreamSink(c StreamConfig) *RedisStreamSink {
	return &RedisStreamSink{
		redis:  c.Redis,
		stream: fmt.Sprintf("%s:audit", c.Prefix),
		maxLen: c.MaxLen,
	}
}

func (s *RedisStreamSink) Record(ctx context.Context, e domain.AuditEntry) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"category":  e.Category,
			"actor":     e.Actor,
			"message":   e.Message,
			"email":     e.Email,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}

	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}

	return nil
}

// Recent returns up to n entries, newest first.
func (s *RedisStreamSink) Recent(ctx context.Context, n int64) ([]domain.AuditEntry, error) {
	msgs, err := s.redis.XRevRangeN(ctx, s.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", s.stream, err)
	}

	out := make([]domain.AuditEntry, 0, len(msgs))
	for _, m := range msgs {
		e := domain.AuditEntry{
			Category: str(m.Values["category"]),
			Actor:    str(m.Values["actor"]),
			Message:  str(m.Values["message"]),
			Email:    str(m.Values["email"]),
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, str(m.Values["timestamp"]))
		out = append(out, e)
	}

	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// LogSink writes entries to a slog logger. Used when no Redis is configured.
type LogSink struct {
	l *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{l: l}
}

func (s *LogSink) Record(ctx context.Context, e domain.AuditEntry) error {
	s.l.InfoContext(ctx, "audit: "+e.Message,
		"category", e.Category,
		"actor", e.Actor,
		"email", e.Email,
		"timestamp", e.Timestamp,
	)
	return nil
}
