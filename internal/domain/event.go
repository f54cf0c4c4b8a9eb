package domain

import "time"

const (
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventAction is published for every audited operation. Detail, when set,
// replaces the action's default description.
type EventAction struct {
	Action Action
	Actor  string
	Email  string
	Detail string
	At     time.Time
}

func (e EventAction) Name() string { return e.Action.EventName() }

// Message is the text written to the audit log.
func (e EventAction) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Action.Description()
}

type EventLeaderboardUpdated struct {
	Slot LeaderboardSlot
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
