package entity

import "time"

const InitialElo = 1000

// Player is the profile record owned by the profile store. Sessions only hold the ID.
type Player struct {
	ID        string `json:"id" redis:"id"`
	Elo       int    `json:"elo" redis:"elo"`
	SessionID string `json:"session_id,omitempty" redis:"session_id"`
}

func NewPlayer(id string) *Player {
	return &Player{
		ID:  id,
		Elo: InitialElo,
	}
}

func (that *Player) InGame() bool {
	return that.SessionID != ""
}

type ConnStatus string

const (
	StatusNeverJoined  ConnStatus = "never_joined"
	StatusConnected    ConnStatus = "connected"
	StatusDisconnected ConnStatus = "disconnected"
)

// Seat is one of the two participant slots of a session.
type Seat struct {
	PlayerID string     `json:"player_id,omitempty"`
	Elo      int        `json:"elo"`
	Mark     Mark       `json:"mark,omitempty"`
	Status   ConnStatus `json:"status"`
	Accepted bool       `json:"accepted"`
	// AcceptOrder is 1 for the first seat to accept the challenge, 2 for the second.
	AcceptOrder   int       `json:"accept_order,omitempty"`
	GraceDeadline time.Time `json:"grace_deadline,omitempty"`
}

func NewSeat(player *Player) Seat {
	if player == nil {
		return Seat{Status: StatusNeverJoined}
	}

	return Seat{
		PlayerID: player.ID,
		Elo:      player.Elo,
		Status:   StatusConnected,
	}
}

func (that Seat) IsEmpty() bool {
	return that.PlayerID == ""
}

func (that Seat) IsConnected() bool {
	return that.Status == StatusConnected
}

// Standing is the durable rating record of a player kept next to finished results.
type Standing struct {
	PlayerID  string    `json:"player_id"`
	Elo       int       `json:"elo"`
	Games     int       `json:"games"`
	Wins      int       `json:"wins"`
	Draws     int       `json:"draws"`
	Losses    int       `json:"losses"`
	UpdatedAt time.Time `json:"updated_at"`
}
