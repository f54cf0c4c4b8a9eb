package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/telemetry"
)

type RecorderConfig struct {
	EventBus *event.Bus
	Sink     Sink
	Now      func() time.Time
}

// Recorder turns action events into audit entries. A failing sink is logged
// and never affects the action that produced the event.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

func NewRecorder(c RecorderConfig) *Recorder {
	r := &Recorder{
		sink: c.Sink,
		now:  c.Now,
	}

	if r.now == nil {
		r.now = time.Now
	}

	actions := domain.Actions()
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.EventName())
	}

	c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
		r.Handle(ctx, e.(domain.EventAction))
		return nil
	}, names...)

	return r
}

func (r *Recorder) Handle(ctx context.Context, e domain.EventAction) {
	at := e.At
	if at.IsZero() {
		at = r.now()
	}

	entry := domain.AuditEntry{
		Category:  e.Action.Category(),
		Actor:     e.Actor,
		Message:   e.Message(),
		Email:     e.Email,
		Timestamp: at,
	}

	if err := r.sink.Record(ctx, entry); err != nil {
		telemetry.AuditFailures.Inc()
		slog.ErrorContext(ctx, "audit: record failed",
			"category", entry.Category,
			"actor", entry.Actor,
			"error", err,
		)
	}
}
