package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/leaderboard"
)

const writeWait = 10 * time.Second

type feedMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// leaderboardFeed streams the board over a websocket: the current snapshot
// first, then every notification published on the leaderboard channel.
func (a *API) leaderboardFeed(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	write := func(msg feedMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	ps := a.redis.Subscribe(ctx, a.feed.Channel())
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		slog.ErrorContext(ctx, "api: subscribe leaderboard failed", "error", err)
		_ = write(feedMessage{Type: "error", Payload: errorBody{Code: errors.CodeUnavailable.String(), Message: "leaderboard feed unavailable"}})
		return
	}

	snap, err := a.feed.Snapshot(ctx)
	if err != nil {
		_ = write(feedMessage{Type: "error", Payload: toErrorBody(err)})
		return
	}

	if err := write(feedMessage{Type: "leaderboard", Payload: toLeaderboard(snap.Data)}); err != nil {
		return
	}

	// The client sends nothing; reading only notices when it goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var n leaderboard.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				slog.WarnContext(ctx, "api: bad leaderboard notification", "error", err)
				continue
			}

			if err := write(feedMessage{Type: "leaderboard", Payload: toLeaderboard(n.Data)}); err != nil {
				return
			}
		}
	}
}
