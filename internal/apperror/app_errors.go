package apperror

import "errors"

// Validation errors are reported to the submitting client only; session state is unchanged.
var (
	ErrOutOfBounds       = errors.New("position is out of bounds")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrNotYourTurn       = errors.New("it's not your turn")
	ErrWrongPhase        = errors.New("action is not allowed in the current phase")
	ErrNotSeated         = errors.New("player is not seated in this game")
	ErrRoomFull          = errors.New("room already has two players")
	ErrAlreadyAccepted   = errors.New("challenge is already accepted")
	ErrDrawPending       = errors.New("draw is already proposed")
	ErrNoDrawProposal    = errors.New("there is no draw proposal to answer")
	ErrUnknownInput      = errors.New("unknown input")
	ErrInvalidMark       = errors.New("invalid mark")
	ErrGameFinished      = errors.New("game is already finished")
	ErrGameIsNotStarted  = errors.New("game is not started")
	ErrPlayerInOtherGame = errors.New("player is already in another game")
	ErrNotConnected      = errors.New("player is not connected, send connect first")
	ErrUnknownAction     = errors.New("unknown action")
	ErrMalformedMessage  = errors.New("malformed message")
)

// Timeout errors drive automatic transitions and are never shown to clients as failures.
var (
	ErrTurnTimeout      = errors.New("turn timed out")
	ErrChallengeTimeout = errors.New("challenge timed out")
)

// Connectivity errors drive the disconnect grace logic.
var (
	ErrDisconnected = errors.New("player disconnected")
	ErrGraceExpired = errors.New("reconnect grace expired")
)

// Consistency errors are logged and dropped.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionActive      = errors.New("session is still active")
	ErrAlreadyTerminated  = errors.New("session is already terminated")
	ErrAlreadySettled     = errors.New("result is already settled")
	ErrStaleTimer         = errors.New("timer is stale")
	ErrSessionIDCollision = errors.New("session id already exists")
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindTimeout      ErrorKind = "timeout"
	KindConnectivity ErrorKind = "connectivity"
	KindConsistency  ErrorKind = "consistency"
	KindInternal     ErrorKind = "internal"
)

var kinds = map[ErrorKind][]error{
	KindValidation: {
		ErrOutOfBounds, ErrCellOccupied, ErrNotYourTurn, ErrWrongPhase, ErrNotSeated, ErrRoomFull,
		ErrAlreadyAccepted, ErrDrawPending, ErrNoDrawProposal, ErrUnknownInput, ErrInvalidMark,
		ErrGameFinished, ErrGameIsNotStarted, ErrPlayerInOtherGame, ErrNotConnected, ErrUnknownAction,
		ErrMalformedMessage,
	},
	KindTimeout:      {ErrTurnTimeout, ErrChallengeTimeout},
	KindConnectivity: {ErrDisconnected, ErrGraceExpired},
	KindConsistency: {
		ErrSessionNotFound, ErrSessionActive, ErrAlreadyTerminated, ErrAlreadySettled, ErrStaleTimer,
		ErrSessionIDCollision,
	},
}

// Kind classifies err into one of the error taxonomy groups.
func Kind(err error) ErrorKind {
	for kind, sentinels := range kinds {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return kind
			}
		}
	}

	return KindInternal
}

// IsValidation reports whether err must be returned to the submitter without changing state.
func IsValidation(err error) bool {
	return Kind(err) == KindValidation
}
