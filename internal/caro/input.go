package caro

import (
	"github.com/rocketscienceinc/caro-backend/internal/clock"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

// Input is a discrete, named trigger of a transition.
type Input interface {
	Kind() string
}

type Join struct {
	Player *entity.Player
}

type AcceptChallenge struct {
	PlayerID string
}

type MakeMove struct {
	PlayerID string
	Position entity.Position
}

type ProposeDraw struct {
	PlayerID string
}

type AcceptDraw struct {
	PlayerID string
}

type RejectDraw struct {
	PlayerID string
}

type Surrender struct {
	PlayerID string
}

type Leave struct {
	PlayerID string
}

type Disconnect struct {
	PlayerID string
}

type Reconnect struct {
	PlayerID string
}

// TimerExpired is fed by the session itself once a live timer of Concern fires.
type TimerExpired struct {
	Concern clock.Concern
}

func (Join) Kind() string            { return "join" }
func (AcceptChallenge) Kind() string { return "accept_challenge" }
func (MakeMove) Kind() string        { return "make_move" }
func (ProposeDraw) Kind() string     { return "propose_draw" }
func (AcceptDraw) Kind() string      { return "accept_draw" }
func (RejectDraw) Kind() string      { return "reject_draw" }
func (Surrender) Kind() string       { return "surrender" }
func (Leave) Kind() string           { return "leave" }
func (Disconnect) Kind() string      { return "disconnect" }
func (Reconnect) Kind() string       { return "reconnect" }
func (TimerExpired) Kind() string    { return "timer_expired" }

// Actor returns the player an input comes from, or an empty string for timer inputs.
func Actor(input Input) string {
	switch in := input.(type) {
	case Join:
		if in.Player != nil {
			return in.Player.ID
		}
	case AcceptChallenge:
		return in.PlayerID
	case MakeMove:
		return in.PlayerID
	case ProposeDraw:
		return in.PlayerID
	case AcceptDraw:
		return in.PlayerID
	case RejectDraw:
		return in.PlayerID
	case Surrender:
		return in.PlayerID
	case Leave:
		return in.PlayerID
	case Disconnect:
		return in.PlayerID
	case Reconnect:
		return in.PlayerID
	}

	return ""
}
