package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Lister interface {
	List(ctx context.Context) (*domain.Leaderboard, error)
}

type NotifierConfig struct {
	EventBus *event.Bus
	Board    Lister
	Redis    redis.UniversalClient
	Prefix   string
}

// Notification is the JSON message published on the leaderboard channel.
type Notification struct {
	Event string             `json:"event"`
	Data  domain.Leaderboard `json:"data"`
}

// Notifier keeps a copy of the board in Redis and announces changes on the
// <prefix>:leaderboard pub/sub channel.
type Notifier struct {
	board  Lister
	redis  redis.UniversalClient
	prefix string

	mu       sync.Mutex
	trailing *time.Timer
	stopped  bool
}

// storeBoard writes the board only when its version is not older than the
// cached one. KEYS: board, version. ARGV: board, version.
var storeBoard = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[2]) < cur then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

func NewNotifier(c NotifierConfig) *Notifier {
	n := &Notifier{
		board:  c.Board,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
		return n.Notify(ctx, e.(domain.EventLeaderboardUpdated))
	}, domain.EventNameLeaderboardUpdated)

	return n
}

// Channel is the pub/sub channel notifications are published on.
func (n *Notifier) Channel() string {
	return fmt.Sprintf("%s:leaderboard", n.prefix)
}

// Notify refreshes the cached board and publishes it, at most once per
// publish interval across all instances sharing the Redis. Updates throttled
// inside an interval are flushed once at its end with the newest cached board.
func (n *Notifier) Notify(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l, err := n.board.List(ctx)
	if err != nil {
		return fmt.Errorf("get leaderboard: %w", err)
	}

	b, err := json.Marshal(Notification{Event: e.Name(), Data: *l})
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}

	stored, err := storeBoard.Run(ctx, n.redis, []string{n.boardKey(), n.versionKey()}, b, l.UpdatedAt.UnixMicro()).Int()
	if err != nil {
		return fmt.Errorf("cache leaderboard: %w", err)
	}

	if stored == 0 {
		slog.DebugContext(ctx, "leaderboard: newer board already cached", "score", e.Slot.Score)
		return nil
	}

	ok, err := n.redis.SetNX(ctx, n.timeKey(), e.Slot.AchievedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		slog.DebugContext(ctx, "leaderboard: publish throttled", "score", e.Slot.Score)
		return n.schedule(ctx)
	}

	return n.redis.Publish(ctx, n.Channel(), b).Err()
}

// Stop cancels a pending trailing publish.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	if n.trailing != nil {
		n.trailing.Stop()
		n.trailing = nil
	}
}

// schedule marks the board as pending and schedules a flush on this instance
// unless one is already scheduled.
func (n *Notifier) schedule(ctx context.Context) error {
	if err := n.redis.Set(ctx, n.pendingKey(), 1, 0).Err(); err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped || n.trailing != nil {
		return nil
	}

	n.trailing = time.AfterFunc(publishInterval, n.flush)
	return nil
}

// flush publishes the cached board when an update is still pending. GETDEL
// lets a single instance win when several scheduled a flush.
func (n *Notifier) flush() {
	n.mu.Lock()
	n.trailing = nil
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := n.redis.GetDel(ctx, n.pendingKey()).Err(); err != nil {
		if !stderrors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "leaderboard: read pending flag failed", "error", err)
		}
		return
	}

	b, err := n.redis.Get(ctx, n.boardKey()).Bytes()
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: read cached board failed", "error", err)
		return
	}

	if err := n.redis.Publish(ctx, n.Channel(), b).Err(); err != nil {
		slog.WarnContext(ctx, "leaderboard: trailing publish failed", "error", err)
	}
}

// Snapshot returns the last published board, reading through to the store
// when Redis has none.
func (n *Notifier) Snapshot(ctx context.Context) (*Notification, error) {
	b, err := n.redis.Get(ctx, n.boardKey()).Bytes()
	if err == nil {
		var msg Notification
		if err := json.Unmarshal(b, &msg); err == nil {
			return &msg, nil
		}
	}

	if err != nil && !stderrors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "leaderboard: cache read failed", "error", err)
	}

	l, err := n.board.List(ctx)
	if err != nil {
		return nil, err
	}

	return &Notification{Event: domain.EventNameLeaderboardUpdated, Data: *l}, nil
}

func (n *Notifier) boardKey() string {
	return fmt.Sprintf("%s:leaderboard:board", n.prefix)
}

func (n *Notifier) timeKey() string {
	return fmt.Sprintf("%s:leaderboard:time", n.prefix)
}

func (n *Notifier) versionKey() string {
	return fmt.Sprintf("%s:leaderboard:version", n.prefix)
}

func (n *Notifier) pendingKey() string {
	return fmt.Sprintf("%s:leaderboard:pending", n.prefix)
}
