package caro

import (
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/rating"
)

type EventKind string

const (
	EventRoomJoined         EventKind = "room:joined"
	EventChallengePending   EventKind = "challenge:pending"
	EventChallengeAccepted  EventKind = "challenge:accepted"
	EventGameStarted        EventKind = "game:started"
	EventMoveApplied        EventKind = "game:move"
	EventInvalidMove        EventKind = "game:invalid_move"
	EventTurnTimerTick      EventKind = "game:tick"
	EventGameOver           EventKind = "game:over"
	EventDrawProposed       EventKind = "draw:proposed"
	EventDrawRejected       EventKind = "draw:rejected"
	EventPlayerDisconnected EventKind = "player:disconnected"
	EventPlayerReconnected  EventKind = "player:reconnected"
)

// Event is emitted by a session for the gateway to relay.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Version   int       `json:"version"`
	// Recipient restricts delivery to one player. Empty means both seats.
	Recipient string `json:"-"`
	PlayerID  string `json:"player_id,omitempty"`

	Seats       *[2]entity.Seat `json:"seats,omitempty"`
	Board       *entity.Board   `json:"board,omitempty"`
	Move        *entity.Move    `json:"move,omitempty"`
	Turn        entity.Mark     `json:"turn,omitempty"`
	Deadline    time.Time       `json:"deadline,omitempty"`
	RemainingMs int64           `json:"remaining_ms,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Result      *Result         `json:"result,omitempty"`
	Snapshot    *Snapshot       `json:"snapshot,omitempty"`
}

// Result is the game-over payload. Winner is empty for draws and abandoned games.
type Result struct {
	Phase    Phase               `json:"phase"`
	Cause    Cause               `json:"cause"`
	Winner   entity.Mark         `json:"winner,omitempty"`
	WinnerID string              `json:"winner_id,omitempty"`
	Line     *entity.WinningLine `json:"line,omitempty"`
	Changes  []rating.Change     `json:"changes,omitempty"`
}

// EventSink receives events in transition order. Publish is called while the session
// is locked and must not block.
type EventSink interface {
	Publish(event Event)
}

type EventSinkFunc func(event Event)

func (that EventSinkFunc) Publish(event Event) {
	that(event)
}
