package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/game"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/player"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/stats"
)

func TestAPI(t *testing.T) {
	type (
		inputs struct {
			game   *fakeGame
			method string
			path   string
			body   string
		}

		outputs struct {
			code int
			body map[string]any
			game *fakeGame
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should register a player": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodPost, path: "/v1/players", body: `{"username":"alice","email":"a@example.com"}`}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusCreated, out.code)
				assert.Equal(t, "alice", out.body["username"])
				assert.EqualValues(t, 1, out.body["player_id"])
			},
		},

		"should reject a registration without username": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodPost, path: "/v1/players", body: `{"email":"a@example.com"}`}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusBadRequest, out.code)
				assert.Equal(t, "InvalidArgument", out.body["code"])
			},
		},

		"should reject a non numeric player id": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodPost, path: "/v1/players/abc/game"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusBadRequest, out.code)
			},
		},

		"should start a game with its questions": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodPost, path: "/v1/players/7/game", body: `{"restart":true}`}
			},
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, http.StatusOK, out.code)
				assert.Equal(t, false, out.body["continued"])
				ss := out.body["session"].(map[string]any)
				assert.EqualValues(t, 3, ss["solved_count"])
				assert.EqualValues(t, 2, ss["remaining"], "remaining follows the configured session size")
				qq := out.body["questions"].([]any)
				require.Len(t, qq, 1)
				assert.Equal(t, "Paris", qq[0].(map[string]any)["options"].(map[string]any)["a"])
				assert.True(t, out.game.lastStart.Restart)
				assert.Equal(t, int64(7), out.game.lastStart.PlayerID)
			},
		},

		"should record an answer": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodPost, path: "/v1/players/7/answers",
					body: `{"session_id":"0192a7c4-7d7e-7a4e-9a7e-1f2d3c4b5a69","question_id":3,"answer":"B"}`}
			},
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, http.StatusOK, out.code)
				assert.Equal(t, true, out.body["is_correct"])
				assert.Equal(t, "B", out.game.lastAnswer.Selected)
				assert.Nil(t, out.body["finished"])
			},
		},

		"should report the finished game with the last answer": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{finishOnAnswer: true}, method: http.MethodPost, path: "/v1/players/7/answers",
					body: `{"session_id":"0192a7c4-7d7e-7a4e-9a7e-1f2d3c4b5a69","question_id":3,"answer":"a"}`}
			},
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, http.StatusOK, out.code)
				fin := out.body["finished"].(map[string]any)
				assert.Equal(t, "00:02:50", fin["total_time"])
				assert.EqualValues(t, 170000, fin["total_time_ms"])
				assert.Equal(t, true, fin["leaderboard_updated"])
			},
		},

		"should map a duplicate answer to conflict": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{err: domain.ErrDuplicateAnswer.With(errors.WithMessagef("already answered"))},
					method: http.MethodPost, path: "/v1/players/7/answers",
					body: `{"session_id":"0192a7c4-7d7e-7a4e-9a7e-1f2d3c4b5a69","question_id":3,"answer":"a"}`}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusConflict, out.code)
				assert.Equal(t, "DUPLICATE_ANSWER", out.body["reason"])
				assert.Equal(t, "already answered", out.body["message"])
			},
		},

		"should map an unknown session to not found": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{err: domain.ErrUnknownSession}, method: http.MethodPost, path: "/v1/players/7/finish"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusNotFound, out.code)
			},
		},

		"should map an unavailable store to service unavailable": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{err: domain.ErrStoreUnavailable}, method: http.MethodDelete, path: "/v1/players/7/game"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusServiceUnavailable, out.code)
				assert.Equal(t, "STORE_UNAVAILABLE", out.body["reason"])
			},
		},

		"should hide internal errors": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{err: stderrors.New("pq: secret detail")}, method: http.MethodPost, path: "/v1/players/7/quit"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusInternalServerError, out.code)
				assert.Equal(t, "internal error", out.body["message"])
			},
		},

		"should quit without a body": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodPost, path: "/v1/players/7/quit"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusNoContent, out.code)
			},
		},

		"should list the leaderboard with formatted times": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodGet, path: "/v1/leaderboard"}
			},
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, http.StatusOK, out.code)
				entries := out.body["entries"].([]any)
				require.Len(t, entries, 1)
				assert.Equal(t, "01:02:03", entries[0].(map[string]any)["total_time"])
			},
		},

		"should audit a statistics view by the viewer": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodGet, path: "/v1/stats/players/total?viewer=7"}
			},
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, http.StatusOK, out.code)
				assert.EqualValues(t, 3, out.body["total_players"])
				assert.Equal(t, []domain.Action{domain.ActionViewTotalPlayers}, out.game.viewed)
			},
		},

		"should reject an invalid audit limit": {
			arrange: func() inputs {
				return inputs{game: &fakeGame{}, method: http.MethodGet, path: "/v1/audit?limit=-4"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, http.StatusBadRequest, out.code)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			r := makeRouter(t, in.game, nil, nil)

			var body *bytes.Reader
			if in.body != "" {
				body = bytes.NewReader([]byte(in.body))
			} else {
				body = bytes.NewReader(nil)
			}

			req := httptest.NewRequest(in.method, in.path, body)
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			out := outputs{code: rec.Code, game: in.game}
			if rec.Body.Len() > 0 {
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.body))
			}

			tt.assert(t, out)
		})
	}
}

func TestAPI_LeaderboardFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = rc.Close() })

	feed := fakeFeed{channel: "test:leaderboard"}
	srv := httptest.NewServer(makeRouter(t, &fakeGame{}, feed, rc))
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/leaderboard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	typ, payload := readFeed(t, conn)
	require.Equal(t, "leaderboard", typ)
	assert.Len(t, payload["entries"], 1, "snapshot comes first")

	b, err := json.Marshal(leaderboard.Notification{
		Event: domain.EventNameLeaderboardUpdated,
		Data: domain.Leaderboard{Entries: []domain.LeaderboardEntry{
			{Score: 20, Username: "alice", TotalTime: 2*time.Minute + 50*time.Second},
			{Score: 5, Username: "bob", TotalTime: time.Hour},
		}},
	})
	require.NoError(t, err)
	mr.Publish(feed.channel, string(b))

	typ, payload = readFeed(t, conn)
	require.Equal(t, "leaderboard", typ)
	entries := payload["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "00:02:50", entries[0].(map[string]any)["total_time"])
}

func makeRouter(t *testing.T, g *fakeGame, feed api.Feed, rc redis.UniversalClient) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if feed == nil {
		feed = fakeFeed{channel: "test:leaderboard"}
	}

	r := gin.New()
	api.New(api.Config{
		Router:  r,
		Game:    g,
		Players: g,
		Stats:   fakeStats{},
		Audit:   fakeAudit{},
		Feed:    feed,
		Redis:   rc,
	})

	return r
}

func readFeed(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()

	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))

	return msg.Type, msg.Payload
}

type fakeGame struct {
	mu             sync.Mutex
	err            error
	finishOnAnswer bool
	lastStart      game.StartRequest
	lastAnswer     game.AnswerRequest
	viewed         []domain.Action
}

func (g *fakeGame) Register(_ context.Context, req player.RegisterRequest) (*domain.Player, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &domain.Player{PlayerID: 1, Username: req.Username, Email: req.Email}, nil
}

func (g *fakeGame) GetByUsername(_ context.Context, username string) (*domain.Player, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &domain.Player{PlayerID: 1, Username: username}, nil
}

func (g *fakeGame) Start(_ context.Context, req game.StartRequest) (*game.StartResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.lastStart = req
	return &game.StartResponse{
		Session:   &domain.Session{SessionID: "0192a7c4-7d7e-7a4e-9a7e-1f2d3c4b5a69", PlayerID: req.PlayerID, SolvedCount: 3, IsActive: true},
		Remaining: 2,
		Questions: []domain.Question{
			{QuestionID: 4, Text: "Capital of France?", OptionA: "Paris", OptionB: "Rome", OptionC: "Oslo", OptionD: "Bern"},
		},
	}, nil
}

func (g *fakeGame) Answer(_ context.Context, req game.AnswerRequest) (*game.AnswerResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.lastAnswer = req

	resp := &game.AnswerResponse{IsCorrect: true, CorrectLetter: domain.LetterB, SolvedCount: 4, Remaining: 16}
	if g.finishOnAnswer {
		resp.SolvedCount, resp.Remaining = 20, 0
		resp.Finished = &game.FinishResponse{
			Result:             domain.GameResult{CorrectCount: 20, Elapsed: 2*time.Minute + 50*time.Second},
			LeaderboardUpdated: true,
		}
	}
	return resp, nil
}

func (g *fakeGame) Finish(context.Context, int64) (*game.FinishResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &game.FinishResponse{}, nil
}

func (g *fakeGame) Reset(context.Context, int64) (*session.ResetResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &session.ResetResponse{DeletedAnswers: 3}, nil
}

func (g *fakeGame) Quit(context.Context, int64) error {
	return g.err
}

func (g *fakeGame) SessionStats(context.Context, int64) (*stats.SessionStats, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &stats.SessionStats{Correct: 2, Incorrect: 1, Remaining: 17}, nil
}

func (g *fakeGame) Leaderboard(context.Context, int64) (*domain.Leaderboard, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &domain.Leaderboard{Entries: []domain.LeaderboardEntry{
		{Score: 9, Username: "alice", TotalTime: time.Hour + 2*time.Minute + 3*time.Second},
	}}, nil
}

func (g *fakeGame) Viewed(_ context.Context, viewerID int64, a domain.Action) {
	if viewerID <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.viewed = append(g.viewed, a)
}

type fakeStats struct{}

func (fakeStats) TotalPlayers(context.Context) (int64, error) { return 3, nil }

func (fakeStats) MostCorrectlyAnswered(context.Context) ([]stats.QuestionCorrectCount, error) {
	return []stats.QuestionCorrectCount{{QuestionID: 1, CorrectCount: 4}}, nil
}

func (fakeStats) LeastCorrectlyAnswered(context.Context) ([]stats.QuestionCorrectCount, error) {
	return []stats.QuestionCorrectCount{{QuestionID: 2, CorrectCount: 1}}, nil
}

func (fakeStats) PlayersByCorrectAnswers(context.Context) ([]stats.PlayerCount, error) {
	return []stats.PlayerCount{{Username: "alice", Count: 4}}, nil
}

func (fakeStats) PlayersByTotalAnswers(context.Context) ([]stats.PlayerCount, error) {
	return []stats.PlayerCount{{Username: "alice", Count: 6}}, nil
}

func (fakeStats) PlayerAnswers(context.Context, int64) ([]stats.PlayerAnswer, error) {
	return []stats.PlayerAnswer{}, nil
}

func (fakeStats) QuestionAnswerStats(context.Context) ([]stats.QuestionStats, error) {
	return []stats.QuestionStats{}, nil
}

func (fakeStats) PlayerAnsweredVsUnanswered(context.Context, int64) (*stats.AnsweredShare, error) {
	return &stats.AnsweredShare{Answered: 6, Unanswered: 294}, nil
}

func (fakeStats) PlayerCorrectVsIncorrect(context.Context, int64) (*stats.CorrectShare, error) {
	return &stats.CorrectShare{Correct: 4, Incorrect: 2, Accuracy: stats.Accuracy(4, 2)}, nil
}

type fakeAudit struct{}

func (fakeAudit) Recent(context.Context, int64) ([]domain.AuditEntry, error) {
	return []domain.AuditEntry{{Category: "Game Start", Actor: "alice"}}, nil
}

type fakeFeed struct {
	channel string
}

func (f fakeFeed) Channel() string { return f.channel }

func (fakeFeed) Snapshot(context.Context) (*leaderboard.Notification, error) {
	return &leaderboard.Notification{
		Event: domain.EventNameLeaderboardUpdated,
		Data:  domain.Leaderboard{Entries: []domain.LeaderboardEntry{{Score: 1, Username: "carol"}}},
	}, nil
}
