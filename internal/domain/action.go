package domain

import "fmt"

// Action is a closed set of operations that leave a trace in the audit log.
type Action int

const (
	ActionStartGame Action = iota + 1
	ActionContinueGame
	ActionRecordAnswer
	ActionSessionStats
	ActionCompleteSession
	ActionUpdateHighScores
	ActionDisplayHighScores
	ActionResetGame
	ActionQuitGame
	ActionRegisterPlayer

	ActionViewTotalPlayers
	ActionViewMostCorrect
	ActionViewLeastCorrect
	ActionViewPlayersByCorrect
	ActionViewPlayersByTotal
	ActionViewPlayerAnswers
	ActionViewQuestionStats
	ActionViewPlayerAnsweredShare
	ActionViewPlayerCorrectShare

	actionEnd
)

// Actions lists every action in declaration order.
func Actions() []Action {
	aa := make([]Action, 0, actionEnd-1)
	for a := ActionStartGame; a < actionEnd; a++ {
		aa = append(aa, a)
	}
	return aa
}

// Category is the audit category written for the action.
func (a Action) Category() string {
	switch a {
	case ActionStartGame:
		return "Game Start"
	case ActionContinueGame:
		return "Game Continue"
	case ActionRecordAnswer:
		return "Answer Record"
	case ActionSessionStats:
		return "Questions Status"
	case ActionCompleteSession:
		return "Game Complete"
	case ActionUpdateHighScores:
		return "Update High Scores"
	case ActionDisplayHighScores:
		return "Display High Scores"
	case ActionResetGame:
		return "Game Reset"
	case ActionQuitGame:
		return "Game Quitting"
	case ActionRegisterPlayer:
		return "User Register"
	case ActionViewTotalPlayers:
		return "Viewing Statistics 1"
	case ActionViewMostCorrect:
		return "Viewing Statistics 2"
	case ActionViewLeastCorrect:
		return "Viewing Statistics 3"
	case ActionViewPlayersByCorrect:
		return "Viewing Statistics 4"
	case ActionViewPlayersByTotal:
		return "Viewing Statistics 5"
	case ActionViewPlayerAnswers:
		return "Viewing Statistics 6"
	case ActionViewQuestionStats:
		return "Viewing Statistics 7"
	case ActionViewPlayerAnsweredShare:
		return "Viewing Statistics 9"
	case ActionViewPlayerCorrectShare:
		return "Viewing Statistics 10"
	}
	panic(fmt.Sprintf("domain: unknown action %d", int(a)))
}

// Description is the human readable log line of the action.
func (a Action) Description() string {
	switch a {
	case ActionStartGame:
		return "The player has started the game."
	case ActionContinueGame:
		return "The player has continued the game."
	case ActionRecordAnswer:
		return "The player has answered a question."
	case ActionSessionStats:
		return "The player has seen his questions status."
	case ActionCompleteSession:
		return "The game session is completed."
	case ActionUpdateHighScores:
		return "The high scores table has been updated."
	case ActionDisplayHighScores:
		return "The high scores table has been displayed."
	case ActionResetGame:
		return "The game has been reset."
	case ActionQuitGame:
		return "The player has quit the game."
	case ActionRegisterPlayer:
		return "New player has been signed up."
	case ActionViewTotalPlayers:
		return "Viewed the total players that play the game."
	case ActionViewMostCorrect:
		return "Viewed the most correctly answered question."
	case ActionViewLeastCorrect:
		return "Viewed the least correctly answered question."
	case ActionViewPlayersByCorrect:
		return "Viewed the players ranked by correct answers."
	case ActionViewPlayersByTotal:
		return "Viewed the players ranked by total answers."
	case ActionViewPlayerAnswers:
		return "Viewed specific player answers statistics."
	case ActionViewQuestionStats:
		return "Viewed questions answers statistics."
	case ActionViewPlayerAnsweredShare:
		return "Viewed player's answered vs not answered questions."
	case ActionViewPlayerCorrectShare:
		return "Viewed player's correct vs incorrect answers."
	}
	panic(fmt.Sprintf("domain: unknown action %d", int(a)))
}

// EventName is the event bus topic the action is published on.
func (a Action) EventName() string {
	return fmt.Sprintf("action.%d", int(a))
}

func (a Action) String() string {
	return a.Category()
}
