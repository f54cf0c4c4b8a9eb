package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/game"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/player"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/stats"
)

const defaultAuditLimit = 50

type Game interface {
	Register(ctx context.Context, req player.RegisterRequest) (*domain.Player, error)
	Start(ctx context.Context, req game.StartRequest) (*game.StartResponse, error)
	Answer(ctx context.Context, req game.AnswerRequest) (*game.AnswerResponse, error)
	Finish(ctx context.Context, playerID int64) (*game.FinishResponse, error)
	Reset(ctx context.Context, playerID int64) (*session.ResetResponse, error)
	Quit(ctx context.Context, playerID int64) error
	SessionStats(ctx context.Context, playerID int64) (*stats.SessionStats, error)
	Leaderboard(ctx context.Context, viewerID int64) (*domain.Leaderboard, error)
	Viewed(ctx context.Context, viewerID int64, a domain.Action)
}

type Players interface {
	GetByUsername(ctx context.Context, username string) (*domain.Player, error)
}

type Stats interface {
	TotalPlayers(ctx context.Context) (int64, error)
	MostCorrectlyAnswered(ctx context.Context) ([]stats.QuestionCorrectCount, error)
	LeastCorrectlyAnswered(ctx context.Context) ([]stats.QuestionCorrectCount, error)
	PlayersByCorrectAnswers(ctx context.Context) ([]stats.PlayerCount, error)
	PlayersByTotalAnswers(ctx context.Context) ([]stats.PlayerCount, error)
	PlayerAnswers(ctx context.Context, playerID int64) ([]stats.PlayerAnswer, error)
	QuestionAnswerStats(ctx context.Context) ([]stats.QuestionStats, error)
	PlayerAnsweredVsUnanswered(ctx context.Context, playerID int64) (*stats.AnsweredShare, error)
	PlayerCorrectVsIncorrect(ctx context.Context, playerID int64) (*stats.CorrectShare, error)
}

type AuditLog interface {
	Recent(ctx context.Context, n int64) ([]domain.AuditEntry, error)
}

type Feed interface {
	Snapshot(ctx context.Context) (*leaderboard.Notification, error)
	Channel() string
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Config struct {
	Router   gin.IRouter
	Game     Game
	Players  Players
	Stats    Stats
	Audit    AuditLog
	Feed     Feed
	Redis    Subscriber
	Upgrader *websocket.Upgrader
}

// API is the HTTP/JSON surface of the game engine.
type API struct {
	game     Game
	players  Players
	stats    Stats
	audit    AuditLog
	feed     Feed
	redis    Subscriber
	upgrader *websocket.Upgrader
}

func New(c Config) *API {
	a := &API{
		game:     c.Game,
		players:  c.Players,
		stats:    c.Stats,
		audit:    c.Audit,
		feed:     c.Feed,
		redis:    c.Redis,
		upgrader: c.Upgrader,
	}

	if a.upgrader == nil {
		a.upgrader = &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		}
	}

	v1 := c.Router.Group("/v1")

	v1.POST("/players", a.registerPlayer)
	v1.GET("/players", a.findPlayer)
	v1.POST("/players/:id/game", a.startGame)
	v1.DELETE("/players/:id/game", a.resetGame)
	v1.POST("/players/:id/answers", a.answer)
	v1.GET("/players/:id/answers", a.playerAnswers)
	v1.POST("/players/:id/finish", a.finishGame)
	v1.POST("/players/:id/quit", a.quitGame)
	v1.GET("/players/:id/session/stats", a.sessionStats)
	v1.GET("/players/:id/stats/answered", a.playerAnsweredShare)
	v1.GET("/players/:id/stats/correct", a.playerCorrectShare)

	v1.GET("/leaderboard", a.leaderboard)
	v1.GET("/leaderboard/ws", a.leaderboardFeed)

	v1.GET("/stats/players/total", a.totalPlayers)
	v1.GET("/stats/players/by-correct", a.playersByCorrect)
	v1.GET("/stats/players/by-total", a.playersByTotal)
	v1.GET("/stats/questions", a.questionStats)
	v1.GET("/stats/questions/most-correct", a.mostCorrect)
	v1.GET("/stats/questions/least-correct", a.leastCorrect)

	v1.GET("/audit", a.recentAudit)

	return a
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
}

func (a *API) registerPlayer(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	p, err := a.game.Register(c, player.RegisterRequest{Username: req.Username, Email: req.Email})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPlayer(p))
}

func (a *API) findPlayer(c *gin.Context) {
	p, err := a.players.GetByUsername(c, c.Query("username"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPlayer(p))
}

type startRequest struct {
	Restart bool `json:"restart"`
}

func (a *API) startGame(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	var req startRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	resp, err := a.game.Start(c, game.StartRequest{PlayerID: id, Restart: req.Restart})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStart(resp))
}

type answerRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	QuestionID int64  `json:"question_id" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
}

func (a *API) answer(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	var req answerRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.game.Answer(c, game.AnswerRequest{
		PlayerID:   id,
		SessionID:  req.SessionID,
		QuestionID: req.QuestionID,
		Selected:   req.Answer,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAnswer(resp))
}

func (a *API) finishGame(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	resp, err := a.game.Finish(c, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toFinish(resp))
}

func (a *API) resetGame(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	resp, err := a.game.Reset(c, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":      resp.SessionID,
		"deleted_answers": resp.DeletedAnswers,
	})
}

func (a *API) quitGame(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	if err := a.game.Quit(c, id); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) sessionStats(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	st, err := a.game.SessionStats(c, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) leaderboard(c *gin.Context) {
	l, err := a.game.Leaderboard(c, viewerID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

func (a *API) totalPlayers(c *gin.Context) {
	n, err := a.stats.TotalPlayers(c)
	respondView(a, c, domain.ActionViewTotalPlayers, gin.H{"total_players": n}, err)
}

func (a *API) mostCorrect(c *gin.Context) {
	qq, err := a.stats.MostCorrectlyAnswered(c)
	respondView(a, c, domain.ActionViewMostCorrect, qq, err)
}

func (a *API) leastCorrect(c *gin.Context) {
	qq, err := a.stats.LeastCorrectlyAnswered(c)
	respondView(a, c, domain.ActionViewLeastCorrect, qq, err)
}

func (a *API) playersByCorrect(c *gin.Context) {
	pp, err := a.stats.PlayersByCorrectAnswers(c)
	respondView(a, c, domain.ActionViewPlayersByCorrect, pp, err)
}

func (a *API) playersByTotal(c *gin.Context) {
	pp, err := a.stats.PlayersByTotalAnswers(c)
	respondView(a, c, domain.ActionViewPlayersByTotal, pp, err)
}

func (a *API) questionStats(c *gin.Context) {
	qq, err := a.stats.QuestionAnswerStats(c)
	respondView(a, c, domain.ActionViewQuestionStats, qq, err)
}

func (a *API) playerAnswers(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	aa, err := a.stats.PlayerAnswers(c, id)
	respondView(a, c, domain.ActionViewPlayerAnswers, aa, err)
}

func (a *API) playerAnsweredShare(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	sh, err := a.stats.PlayerAnsweredVsUnanswered(c, id)
	respondView(a, c, domain.ActionViewPlayerAnsweredShare, sh, err)
}

func (a *API) playerCorrectShare(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}

	sh, err := a.stats.PlayerCorrectVsIncorrect(c, id)
	respondView(a, c, domain.ActionViewPlayerCorrectShare, sh, err)
}

func (a *API) recentAudit(c *gin.Context) {
	limit := int64(defaultAuditLimit)
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit: %q", s)))
			return
		}
		limit = n
	}

	ee, err := a.audit.Recent(c, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]auditEntry, 0, len(ee))
	for _, e := range ee {
		out = append(out, toAuditEntry(e))
	}

	c.JSON(http.StatusOK, out)
}

// respondView writes a statistics result and audits the viewer.
func respondView(a *API, c *gin.Context, action domain.Action, body any, err error) {
	if err != nil {
		writeError(c, err)
		return
	}

	a.game.Viewed(c, viewerID(c), action)
	c.JSON(http.StatusOK, body)
}

func playerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid player id: %q", c.Param("id"))))
		return 0, false
	}

	return id, true
}

// viewerID is the optional ?viewer= player id of a read request.
func viewerID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.Query("viewer"), 10, 64)
	return id
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body: %v", err)))
		return false
	}

	return true
}
