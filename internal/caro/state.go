// Package caro holds the authoritative state machine of a single Caro match.
//
// Transition is a pure function of (state, input, now). Session serializes inputs,
// arms the timers the transition asks for and publishes the resulting events.
package caro

import (
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/rating"
)

type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseChallenging Phase = "challenging"
	PhaseInProgress  Phase = "in_progress"
	PhaseCompleted   Phase = "completed"
	PhaseAbandoned   Phase = "abandoned"
)

func (that Phase) Terminal() bool {
	return that == PhaseCompleted || that == PhaseAbandoned
}

// Cause is the termination reason reported in the game-over payload.
type Cause string

const (
	CauseWin              Cause = "win"
	CauseDraw             Cause = "draw"
	CauseDrawAgreed       Cause = "draw_agreed"
	CauseSurrender        Cause = "surrender"
	CauseTimeout          Cause = "timeout"
	CauseAbandonment      Cause = "abandonment"
	CauseChallengeTimeout Cause = "challenge_timeout"
	CauseLeft             Cause = "left"
)

const (
	DefaultChallengeTimeout = 10 * time.Second
	DefaultTurnTimeout      = 30 * time.Second
	DefaultDisconnectGrace  = 30 * time.Second
)

type Config struct {
	ChallengeTimeout time.Duration
	TurnTimeout      time.Duration
	DisconnectGrace  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChallengeTimeout: DefaultChallengeTimeout,
		TurnTimeout:      DefaultTurnTimeout,
		DisconnectGrace:  DefaultDisconnectGrace,
	}
}

// State is everything a match owns. Values are never shared between two states:
// the move log is copied on append and the board is a value.
type State struct {
	ID    string         `json:"id"`
	Phase Phase          `json:"phase"`
	Board entity.Board   `json:"board"`
	Seats [2]entity.Seat `json:"seats"`
	Turn  entity.Mark    `json:"turn,omitempty"`
	Moves []entity.Move  `json:"moves"`

	// Deadline is the end of the challenge window or of the current turn.
	Deadline  time.Time   `json:"deadline,omitempty"`
	DrawOffer entity.Mark `json:"draw_offer,omitempty"`

	Winner   entity.Mark         `json:"winner,omitempty"`
	WinnerID string              `json:"winner_id,omitempty"`
	Line     *entity.WinningLine `json:"line,omitempty"`
	Cause    Cause               `json:"cause,omitempty"`
	Changes  []rating.Change     `json:"changes,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

func NewState(id string, now time.Time) State {
	return State{
		ID:        id,
		Phase:     PhaseWaiting,
		Board:     entity.NewBoard(),
		Seats:     [2]entity.Seat{entity.NewSeat(nil), entity.NewSeat(nil)},
		CreatedAt: now,
	}
}

// SeatOf returns the seat index of playerID or -1.
func (that State) SeatOf(playerID string) int {
	if playerID == "" {
		return -1
	}

	for i, seat := range that.Seats {
		if seat.PlayerID == playerID {
			return i
		}
	}

	return -1
}

func (that State) SeatByMark(mark entity.Mark) int {
	for i, seat := range that.Seats {
		if mark.Valid() && seat.Mark == mark {
			return i
		}
	}

	return -1
}

func (that State) Remaining(now time.Time) time.Duration {
	if that.Deadline.IsZero() || that.Phase.Terminal() {
		return 0
	}

	if remaining := that.Deadline.Sub(now); remaining > 0 {
		return remaining
	}

	return 0
}

// Snapshot is a self-contained copy of a state for clients and the cache tier.
type Snapshot struct {
	State
	RemainingMs int64 `json:"remaining_ms"`
}

func (that State) Snapshot(now time.Time) Snapshot {
	snapshot := Snapshot{
		State:       that,
		RemainingMs: that.Remaining(now).Milliseconds(),
	}

	snapshot.Moves = append([]entity.Move(nil), that.Moves...)
	snapshot.Changes = append([]rating.Change(nil), that.Changes...)
	if that.Line != nil {
		line := *that.Line
		snapshot.Line = &line
	}

	return snapshot
}

// Outcome is what the persistence collaborator receives once a match terminates.
type Outcome struct {
	Key       string          `json:"key"`
	SessionID string          `json:"session_id"`
	Phase     Phase           `json:"phase"`
	Cause     Cause           `json:"cause"`
	Board     entity.Board    `json:"board"`
	Moves     []entity.Move   `json:"moves"`
	Seats     [2]entity.Seat  `json:"seats"`
	WinnerID  string          `json:"winner_id,omitempty"`
	Changes   []rating.Change `json:"changes,omitempty"`
	EndedAt   time.Time       `json:"ended_at"`
}

func (that State) Outcome() Outcome {
	snapshot := that.Snapshot(that.EndedAt)

	return Outcome{
		Key:       IdempotencyKey(that.ID, that.Cause),
		SessionID: that.ID,
		Phase:     that.Phase,
		Cause:     that.Cause,
		Board:     that.Board,
		Moves:     snapshot.Moves,
		Seats:     that.Seats,
		WinnerID:  that.WinnerID,
		Changes:   snapshot.Changes,
		EndedAt:   that.EndedAt,
	}
}

func IdempotencyKey(sessionID string, cause Cause) string {
	return sessionID + ":" + string(cause)
}
