package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/postgres"
	"github.com/victornm/trivia/internal/telemetry"
)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
	// MaxScore is the highest score a slot can hold. Defaults to domain.QuestionsPerSession.
	MaxScore int
	Now      func() time.Time
}

// Service keeps one slot per score holding the fastest time ever achieved
// with exactly that score.
type Service struct {
	eb       *event.Bus
	db       *pgxpool.Pool
	maxScore int
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		db:       c.DB,
		maxScore: c.MaxScore,
		now:      c.Now,
	}

	if s.maxScore <= 0 {
		s.maxScore = domain.QuestionsPerSession
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type SubmitRequest struct {
	PlayerID   int64
	Score      int
	TotalTime  time.Duration
	AchievedAt time.Time
}

type SubmitResponse struct {
	// Updated is false when the slot already holds an equal or faster time.
	Updated bool
	Slot    domain.LeaderboardSlot
}

// Submit offers a finished game to the slot of its score. The slot is taken
// when it is empty or when TotalTime is strictly faster than the stored one.
// Submissions for the same score serialize on the slot row.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.Score < 1 || req.Score > s.maxScore {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("score must be between 1 and %d: %d", s.maxScore, req.Score))
	}

	if req.TotalTime < 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("total time must not be negative: %s", req.TotalTime))
	}

	if req.PlayerID <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid player id: %d", req.PlayerID))
	}

	resp := &SubmitResponse{Slot: domain.LeaderboardSlot{
		Score:      req.Score,
		PlayerID:   req.PlayerID,
		TotalTime:  req.TotalTime,
		AchievedAt: req.AchievedAt,
	}}

	start := time.Now()
	err := postgres.WithTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		resp.Updated, err = swapIfFaster(ctx, tx, resp.Slot)
		return err
	})
	telemetry.ObserveTx("leaderboard_submit", start, err)
	if err != nil {
		return nil, err
	}

	if !resp.Updated {
		telemetry.LeaderboardSubmissions.WithLabelValues("kept").Inc()
		return resp, nil
	}

	telemetry.LeaderboardSubmissions.WithLabelValues("taken").Inc()
	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Slot: resp.Slot})

	return resp, nil
}

// swapIfFaster is a single compare-and-swap on the slot. The conflicting row
// is locked by ON CONFLICT, and the WHERE clause leaves it untouched unless
// the new time is strictly faster. A kept slot returns no row.
func swapIfFaster(ctx context.Context, tx pgx.Tx, slot domain.LeaderboardSlot) (bool, error) {
	const stmt = `
INSERT INTO leaderboard (score, player_id, total_time, achieved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (score) DO UPDATE
SET player_id = EXCLUDED.player_id,
	total_time = EXCLUDED.total_time,
	achieved_at = EXCLUDED.achieved_at
WHERE leaderboard.total_time > EXCLUDED.total_time
RETURNING score;`

	var score int
	err := tx.QueryRow(ctx, stmt, slot.Score, slot.PlayerID, toInterval(slot.TotalTime), slot.AchievedAt).Scan(&score)

	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, pgx.ErrNoRows):
		return false, nil
	case postgres.IsCode(err, postgres.CodeForeignKeyViolation):
		return false, domain.ErrUnknownPlayer.With(
			errors.WithCause(err),
			errors.WithMessagef("player not found: %d", slot.PlayerID),
		)
	default:
		return false, postgres.Classify(fmt.Errorf("swap leaderboard slot: %w", err))
	}
}

// List returns every occupied slot with its owner, highest score first.
// UpdatedAt is taken before the query so a later board never reports an
// older time than one it could be staler than.
func (s *Service) List(ctx context.Context) (*domain.Leaderboard, error) {
	at := s.now()

	const stmt = `
SELECT p.player_id, p.username, COALESCE(p.email, ''), l.score, l.total_time, l.achieved_at
FROM leaderboard l
JOIN players p ON p.player_id = l.player_id
ORDER BY l.score DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("get leaderboard: %w", err))
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var (
			e  domain.LeaderboardEntry
			tt pgtype.Interval
		)
		err := row.Scan(&e.PlayerID, &e.Username, &e.Email, &e.Score, &tt, &e.AchievedAt)
		e.TotalTime = fromInterval(tt)
		return e, err
	})
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("collect leaderboard: %w", err))
	}

	return &domain.Leaderboard{
		Entries:   entries,
		UpdatedAt: at,
	}, nil
}

func toInterval(d time.Duration) pgtype.Interval {
	return pgtype.Interval{Microseconds: d.Microseconds(), Valid: true}
}

func fromInterval(iv pgtype.Interval) time.Duration {
	if !iv.Valid {
		return 0
	}

	const day = 24 * time.Hour
	return time.Duration(iv.Microseconds)*time.Microsecond +
		time.Duration(iv.Days)*day +
		time.Duration(iv.Months)*30*day
}
