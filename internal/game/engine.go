package game

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/trivia/internal/answer"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/player"
	"github.com/victornm/trivia/internal/question"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/stats"
	"github.com/victornm/trivia/internal/telemetry"
)

type Config struct {
	EventBus    *event.Bus
	Players     *player.Service
	Sessions    *session.Service
	Assigner    *question.Assigner
	Questions   question.Store
	Answers     *answer.Service
	Finalizer   *Finalizer
	Leaderboard *leaderboard.Service
	Stats       *stats.Service
	Target      int
	Now         func() time.Time
}

// Engine drives a player through a game: start or continue a session,
// answer its questions, finish it and offer the result to the leaderboard.
// Every step is its own transaction in the underlying services.
type Engine struct {
	eb          *event.Bus
	players     *player.Service
	sessions    *session.Service
	assigner    *question.Assigner
	questions   question.Store
	answers     *answer.Service
	finalizer   *Finalizer
	leaderboard *leaderboard.Service
	stats       *stats.Service
	target      int
	now         func() time.Time
}

func NewEngine(c Config) *Engine {
	e := &Engine{
		eb:          c.EventBus,
		players:     c.Players,
		sessions:    c.Sessions,
		assigner:    c.Assigner,
		questions:   c.Questions,
		answers:     c.Answers,
		finalizer:   c.Finalizer,
		leaderboard: c.Leaderboard,
		stats:       c.Stats,
		target:      c.Target,
		now:         c.Now,
	}

	if e.target <= 0 {
		e.target = domain.QuestionsPerSession
	}

	if e.now == nil {
		e.now = time.Now
	}

	return e
}

func (e *Engine) Register(ctx context.Context, req player.RegisterRequest) (*domain.Player, error) {
	p, err := e.players.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, domain.ActionRegisterPlayer, p, "")
	return p, nil
}

type StartRequest struct {
	PlayerID int64
	// Restart discards the answers of an unfinished session before starting.
	Restart bool
}

type StartResponse struct {
	Session   *domain.Session
	Continued bool
	// Remaining is the number of answers still needed to complete Session.
	Remaining int
	// Questions still to be answered in this session, in random order.
	Questions []domain.Question
	// Previous is set when a full session was waiting to be finished.
	Previous *FinishResponse
}

// Start returns the active session of the player with its unanswered
// questions, creating a session when there is none.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	p, err := e.players.Get(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	resp := &StartResponse{}

	if req.Restart {
		if _, err := e.reset(ctx, p); err != nil && !stderrors.Is(err, domain.ErrNoActiveSession) {
			return nil, err
		}
	}

	ss, created, err := e.sessions.GetOrCreateActiveSession(ctx, p.PlayerID)
	if err != nil {
		return nil, err
	}

	if !created && ss.SolvedCount >= e.target {
		// The last answer was stored but the session was never finished.
		resp.Previous, err = e.finish(ctx, p)
		if err != nil {
			return nil, err
		}

		ss, created, err = e.sessions.GetOrCreateActiveSession(ctx, p.PlayerID)
		if err != nil {
			return nil, err
		}
	}

	ids, err := e.assigner.UnansweredFor(ctx, ss.SessionID, e.target)
	if err != nil {
		return nil, err
	}

	qs, err := e.questions.BulkFetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	resp.Session = ss
	resp.Continued = !created
	resp.Remaining = ss.Remaining(e.target)
	resp.Questions = qs

	if created {
		telemetry.SessionsStarted.Inc()
		e.publish(ctx, domain.ActionStartGame, p, "")
	} else {
		e.publish(ctx, domain.ActionContinueGame, p, "")
	}

	return resp, nil
}

type AnswerRequest struct {
	PlayerID   int64
	SessionID  string
	QuestionID int64
	Selected   string
}

type AnswerResponse struct {
	IsCorrect     bool
	CorrectLetter domain.Letter
	SolvedCount   int
	Remaining     int
	// Finished is set when this answer completed the session.
	Finished *FinishResponse
}

// Answer records one answer and finishes the session when it was the last
// one. A failed finish leaves the session full and active; the next Start
// finishes it.
func (e *Engine) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	p, err := e.players.Get(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	rec, err := e.answers.Record(ctx, answer.RecordRequest{
		PlayerID:   req.PlayerID,
		SessionID:  req.SessionID,
		QuestionID: req.QuestionID,
		Selected:   req.Selected,
	})
	if err != nil {
		return nil, err
	}

	resp := &AnswerResponse{
		IsCorrect:     rec.IsCorrect,
		CorrectLetter: rec.CorrectLetter,
		SolvedCount:   rec.SolvedCount,
		Remaining:     max(e.target-rec.SolvedCount, 0),
	}

	e.publish(ctx, domain.ActionRecordAnswer, p,
		fmt.Sprintf("Answered question %d with %q, correct: %t", req.QuestionID, req.Selected, rec.IsCorrect))

	if rec.SolvedCount < e.target {
		return resp, nil
	}

	resp.Finished, err = e.finish(ctx, p)
	if err != nil {
		slog.ErrorContext(ctx, "game: finish after last answer failed",
			"player_id", req.PlayerID,
			"session_id", req.SessionID,
			"error", err,
		)
	}

	return resp, nil
}

type FinishResponse struct {
	Result             domain.GameResult
	LeaderboardUpdated bool
	Leaderboard        *domain.Leaderboard
}

// Finish completes the active session of the player and, when at least one
// answer was correct, submits the result to the leaderboard.
func (e *Engine) Finish(ctx context.Context, playerID int64) (*FinishResponse, error) {
	p, err := e.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return e.finish(ctx, p)
}

func (e *Engine) finish(ctx context.Context, p *domain.Player) (*FinishResponse, error) {
	res, err := e.finalizer.Finalize(ctx, p.PlayerID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, domain.ActionCompleteSession, p,
		fmt.Sprintf("Completed session %s with %d correct answers in %s", res.SessionID, res.CorrectCount, res.Elapsed.Round(time.Second)))

	resp := &FinishResponse{Result: *res}

	if res.CorrectCount > 0 {
		sub, err := e.leaderboard.Submit(ctx, leaderboard.SubmitRequest{
			PlayerID:   p.PlayerID,
			Score:      res.CorrectCount,
			TotalTime:  res.Elapsed,
			AchievedAt: res.EndTime,
		})
		if err != nil {
			return nil, fmt.Errorf("submit result of session %s: %w", res.SessionID, err)
		}

		resp.LeaderboardUpdated = sub.Updated
		e.publish(ctx, domain.ActionUpdateHighScores, p, "")
	}

	resp.Leaderboard, err = e.leaderboard.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "game: list leaderboard failed", "error", err)
		return resp, nil
	}
	e.publish(ctx, domain.ActionDisplayHighScores, p, "")

	return resp, nil
}

// Reset deletes the answers of the active session and deactivates it.
func (e *Engine) Reset(ctx context.Context, playerID int64) (*session.ResetResponse, error) {
	p, err := e.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return e.reset(ctx, p)
}

func (e *Engine) reset(ctx context.Context, p *domain.Player) (*session.ResetResponse, error) {
	resp, err := e.sessions.ResetPlayer(ctx, p.PlayerID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, domain.ActionResetGame, p, "")
	return resp, nil
}

// Quit leaves the active session untouched so it can be continued later.
func (e *Engine) Quit(ctx context.Context, playerID int64) error {
	p, err := e.players.Get(ctx, playerID)
	if err != nil {
		return err
	}

	e.publish(ctx, domain.ActionQuitGame, p, "")
	return nil
}

func (e *Engine) SessionStats(ctx context.Context, playerID int64) (*stats.SessionStats, error) {
	p, err := e.players.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}

	st, err := e.stats.SessionAnswerStats(ctx, playerID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, domain.ActionSessionStats, p, "")
	return st, nil
}

// Leaderboard lists the board. viewerID, when positive, is audited.
func (e *Engine) Leaderboard(ctx context.Context, viewerID int64) (*domain.Leaderboard, error) {
	l, err := e.leaderboard.List(ctx)
	if err != nil {
		return nil, err
	}

	e.Viewed(ctx, viewerID, domain.ActionDisplayHighScores)
	return l, nil
}

// Viewed audits a read made by viewerID. Anonymous reads are not audited.
func (e *Engine) Viewed(ctx context.Context, viewerID int64, a domain.Action) {
	if viewerID <= 0 {
		return
	}

	p, err := e.players.Get(ctx, viewerID)
	if err != nil {
		slog.WarnContext(ctx, "game: unknown viewer", "player_id", viewerID, "error", err)
		return
	}

	e.publish(ctx, a, p, "")
}

func (e *Engine) publish(ctx context.Context, a domain.Action, p *domain.Player, detail string) {
	e.eb.Publish(ctx, domain.EventAction{
		Action: a,
		Actor:  p.Username,
		Email:  p.Email,
		Detail: detail,
		At:     e.now(),
	})
}
