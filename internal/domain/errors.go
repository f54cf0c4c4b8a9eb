package domain

import "github.com/victornm/trivia/internal/errors"

const (
	ReasonInvalidLetter     errors.Reason = "INVALID_LETTER"
	ReasonInvalidSessionID  errors.Reason = "INVALID_SESSION_ID"
	ReasonUnknownQuestion   errors.Reason = "UNKNOWN_QUESTION"
	ReasonUnknownPlayer     errors.Reason = "UNKNOWN_PLAYER"
	ReasonUnknownSession    errors.Reason = "UNKNOWN_SESSION"
	ReasonNoActiveSession   errors.Reason = "NO_ACTIVE_SESSION"
	ReasonDuplicateAnswer   errors.Reason = "DUPLICATE_ANSWER"
	ReasonSessionFull       errors.Reason = "SESSION_FULL"
	ReasonSessionIncomplete errors.Reason = "SESSION_INCOMPLETE"
	ReasonPlayerExists      errors.Reason = "PLAYER_EXISTS"
	ReasonStoreUnavailable  errors.Reason = "STORE_UNAVAILABLE"
)

// Sentinels are matched with errors.Is on code and reason. Derive concrete
// errors from them with With so the cause and message are kept.
var (
	ErrInvalidLetter = errors.New(errors.CodeInvalidArgument,
		errors.WithReason(ReasonInvalidLetter),
		errors.WithMessagef("answer letter must be one of a, b, c, d"))

	ErrInvalidSessionID = errors.New(errors.CodeInvalidArgument,
		errors.WithReason(ReasonInvalidSessionID),
		errors.WithMessagef("session id is malformed"))

	ErrUnknownQuestion = errors.New(errors.CodeInvalidArgument,
		errors.WithReason(ReasonUnknownQuestion),
		errors.WithMessagef("question does not exist"))

	ErrUnknownPlayer = errors.New(errors.CodeNotFound,
		errors.WithReason(ReasonUnknownPlayer),
		errors.WithMessagef("player does not exist"))

	ErrUnknownSession = errors.New(errors.CodeNotFound,
		errors.WithReason(ReasonUnknownSession),
		errors.WithMessagef("session is not the active session of the player"))

	ErrNoActiveSession = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(ReasonNoActiveSession),
		errors.WithMessagef("player has no active session"))

	ErrDuplicateAnswer = errors.New(errors.CodeAlreadyExists,
		errors.WithReason(ReasonDuplicateAnswer),
		errors.WithMessagef("question already answered in this session"))

	ErrSessionFull = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(ReasonSessionFull),
		errors.WithMessagef("session already has all its answers"))

	ErrSessionIncomplete = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(ReasonSessionIncomplete),
		errors.WithMessagef("session has unanswered questions"))

	ErrPlayerExists = errors.New(errors.CodeAlreadyExists,
		errors.WithReason(ReasonPlayerExists),
		errors.WithMessagef("username or email already taken"))

	ErrStoreUnavailable = errors.New(errors.CodeUnavailable,
		errors.WithReason(ReasonStoreUnavailable),
		errors.WithMessagef("store unavailable"))
)
