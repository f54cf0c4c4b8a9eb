package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/game"
)

type (
	errorBody struct {
		Code    string `json:"code"`
		Reason  string `json:"reason,omitempty"`
		Message string `json:"message"`
	}

	playerBody struct {
		PlayerID  int64     `json:"player_id"`
		Username  string    `json:"username"`
		Email     string    `json:"email,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	sessionBody struct {
		SessionID   string     `json:"session_id"`
		StartTime   time.Time  `json:"start_time"`
		EndTime     *time.Time `json:"end_time,omitempty"`
		SolvedCount int        `json:"solved_count"`
		Remaining   int        `json:"remaining"`
	}

	questionBody struct {
		QuestionID int64             `json:"question_id"`
		Text       string            `json:"question_text"`
		Options    map[string]string `json:"options"`
	}

	startBody struct {
		Session   sessionBody    `json:"session"`
		Continued bool           `json:"continued"`
		Questions []questionBody `json:"questions"`
		Previous  *finishBody    `json:"previous,omitempty"`
	}

	answerBody struct {
		IsCorrect     bool        `json:"is_correct"`
		CorrectAnswer string      `json:"correct_answer"`
		SolvedCount   int         `json:"solved_count"`
		Remaining     int         `json:"remaining"`
		Finished      *finishBody `json:"finished,omitempty"`
	}

	finishBody struct {
		SessionID          string           `json:"session_id"`
		CorrectCount       int              `json:"correct_count"`
		TotalTime          string           `json:"total_time"`
		TotalTimeMs        int64            `json:"total_time_ms"`
		EndTime            time.Time        `json:"end_time"`
		LeaderboardUpdated bool             `json:"leaderboard_updated"`
		Leaderboard        *leaderboardBody `json:"leaderboard,omitempty"`
	}

	leaderboardBody struct {
		Entries   []leaderboardEntry `json:"entries"`
		UpdatedAt time.Time          `json:"updated_at"`
	}

	leaderboardEntry struct {
		Score       int       `json:"score"`
		PlayerID    int64     `json:"player_id"`
		Username    string    `json:"username"`
		Email       string    `json:"email,omitempty"`
		TotalTime   string    `json:"total_time"`
		TotalTimeMs int64     `json:"total_time_ms"`
		AchievedAt  time.Time `json:"achieved_at"`
	}

	auditEntry struct {
		Category  string    `json:"category"`
		Actor     string    `json:"actor"`
		Message   string    `json:"message"`
		Email     string    `json:"email,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}
)

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)

	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c, "api: internal error",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), toErrorBody(e))
}

// toErrorBody hides the message of internal errors.
func toErrorBody(err error) errorBody {
	e := errors.Convert(err)

	if e.Code == errors.CodeInternal {
		return errorBody{Code: e.Code.String(), Message: "internal error"}
	}

	return errorBody{
		Code:    e.Code.String(),
		Reason:  string(e.Reason),
		Message: e.Message,
	}
}

func toPlayer(p *domain.Player) playerBody {
	return playerBody{
		PlayerID:  p.PlayerID,
		Username:  p.Username,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
	}
}

func toStart(r *game.StartResponse) startBody {
	out := startBody{
		Session: sessionBody{
			SessionID:   r.Session.SessionID,
			StartTime:   r.Session.StartTime,
			EndTime:     r.Session.EndTime,
			SolvedCount: r.Session.SolvedCount,
			Remaining:   r.Remaining,
		},
		Continued: r.Continued,
		Questions: make([]questionBody, 0, len(r.Questions)),
	}

	for _, q := range r.Questions {
		out.Questions = append(out.Questions, questionBody{
			QuestionID: q.QuestionID,
			Text:       q.Text,
			Options: map[string]string{
				string(domain.LetterA): q.OptionA,
				string(domain.LetterB): q.OptionB,
				string(domain.LetterC): q.OptionC,
				string(domain.LetterD): q.OptionD,
			},
		})
	}

	if r.Previous != nil {
		prev := toFinish(r.Previous)
		out.Previous = &prev
	}

	return out
}

func toAnswer(r *game.AnswerResponse) answerBody {
	out := answerBody{
		IsCorrect:     r.IsCorrect,
		CorrectAnswer: string(r.CorrectLetter),
		SolvedCount:   r.SolvedCount,
		Remaining:     r.Remaining,
	}

	if r.Finished != nil {
		fin := toFinish(r.Finished)
		out.Finished = &fin
	}

	return out
}

func toFinish(r *game.FinishResponse) finishBody {
	out := finishBody{
		SessionID:          r.Result.SessionID,
		CorrectCount:       r.Result.CorrectCount,
		TotalTime:          formatDuration(r.Result.Elapsed),
		TotalTimeMs:        r.Result.Elapsed.Milliseconds(),
		EndTime:            r.Result.EndTime,
		LeaderboardUpdated: r.LeaderboardUpdated,
	}

	if r.Leaderboard != nil {
		l := toLeaderboard(*r.Leaderboard)
		out.Leaderboard = &l
	}

	return out
}

func toLeaderboard(l domain.Leaderboard) leaderboardBody {
	out := leaderboardBody{
		Entries:   make([]leaderboardEntry, 0, len(l.Entries)),
		UpdatedAt: l.UpdatedAt,
	}

	for _, e := range l.Entries {
		out.Entries = append(out.Entries, leaderboardEntry{
			Score:       e.Score,
			PlayerID:    e.PlayerID,
			Username:    e.Username,
			Email:       e.Email,
			TotalTime:   formatDuration(e.TotalTime),
			TotalTimeMs: e.TotalTime.Milliseconds(),
			AchievedAt:  e.AchievedAt,
		})
	}

	return out
}

func toAuditEntry(e domain.AuditEntry) auditEntry {
	return auditEntry(e)
}

// formatDuration renders d as hh:mm:ss, dropping fractions of a second.
func formatDuration(d time.Duration) string {
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}
