package domain

import (
	"strings"
	"time"
)

// QuestionsPerSession is the number of answers that completes a session.
// It is also the upper bound of a leaderboard score.
const QuestionsPerSession = 20

// Letter is one of the four answer options: a, b, c or d.
type Letter string

const (
	LetterA Letter = "a"
	LetterB Letter = "b"
	LetterC Letter = "c"
	LetterD Letter = "d"
)

// ParseLetter normalizes s and reports whether it is a valid option.
func ParseLetter(s string) (Letter, bool) {
	l := Letter(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

func (l Letter) Valid() bool {
	switch l {
	case LetterA, LetterB, LetterC, LetterD:
		return true
	}
	return false
}

// Player is immutable for the engine.
type Player struct {
	PlayerID  int64
	Username  string
	Email     string
	CreatedAt time.Time
}

// Session is one play-through of QuestionsPerSession questions for a player.
type Session struct {
	SessionID   string
	PlayerID    int64
	StartTime   time.Time
	EndTime     *time.Time
	SolvedCount int
	IsCompleted bool
	IsActive    bool
}

// Remaining is the number of questions still to be answered in a session of
// target questions.
func (s Session) Remaining(target int) int {
	return max(target-s.SolvedCount, 0)
}

// Answer is recorded at most once per (player, question, session).
type Answer struct {
	PlayerID   int64
	QuestionID int64
	SessionID  string
	Selected   Letter
	IsCorrect  bool
	AnsweredAt time.Time
}

// Question is the full content owned by the question store.
type Question struct {
	QuestionID    int64  `json:"question_id"`
	Text          string `json:"question_text"`
	OptionA       string `json:"answer_a"`
	OptionB       string `json:"answer_b"`
	OptionC       string `json:"answer_c"`
	OptionD       string `json:"answer_d"`
	CorrectLetter Letter `json:"correct_answer"`
}

// Option returns the text of option l.
func (q Question) Option(l Letter) string {
	switch l {
	case LetterA:
		return q.OptionA
	case LetterB:
		return q.OptionB
	case LetterC:
		return q.OptionC
	case LetterD:
		return q.OptionD
	}
	return ""
}

// QuestionRef is the reference data the engine needs to grade an answer.
type QuestionRef struct {
	QuestionID    int64
	CorrectLetter Letter
}

// GameResult is produced when a session is finalized.
type GameResult struct {
	SessionID    string
	PlayerID     int64
	CorrectCount int
	Elapsed      time.Duration
	EndTime      time.Time
}

// LeaderboardSlot holds the fastest time recorded for an exact score.
type LeaderboardSlot struct {
	Score      int
	PlayerID   int64
	TotalTime  time.Duration
	AchievedAt time.Time
}

// LeaderboardEntry is a slot joined with its owner.
type LeaderboardEntry struct {
	PlayerID   int64         `json:"player_id"`
	Username   string        `json:"username"`
	Email      string        `json:"email,omitempty"`
	Score      int           `json:"score"`
	TotalTime  time.Duration `json:"total_time"`
	AchievedAt time.Time     `json:"achieved_at"`
}

// Leaderboard is sorted by score in descending order.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// AuditEntry is what the audit sink receives.
type AuditEntry struct {
	Category  string
	Actor     string
	Message   string
	Email     string
	Timestamp time.Time
}
