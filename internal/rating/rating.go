// Package rating computes rating changes for finished games.
//
// Ratings are called Elo throughout the product, but the update rule is a flat
// point scheme: a win is worth 3 points, a draw 1 point each, a loss nothing.
// The rule does not depend on the rating difference between the players.
package rating

import "errors"

var ErrUnknownResult = errors.New("unknown result")

type Result string

const (
	Win  Result = "win"
	Draw Result = "draw"
	Loss Result = "loss"
)

const (
	WinPoints  = 3
	DrawPoints = 1
	LossPoints = 0
)

// Invert returns the result from the opponent's point of view.
func (that Result) Invert() Result {
	switch that {
	case Win:
		return Loss
	case Loss:
		return Win
	default:
		return that
	}
}

func (that Result) points() (int, error) {
	switch that {
	case Win:
		return WinPoints, nil
	case Draw:
		return DrawPoints, nil
	case Loss:
		return LossPoints, nil
	default:
		return 0, ErrUnknownResult
	}
}

// Apply returns the rating deltas of both players given the result for player A.
// The ratings are not used by the flat point rule.
func Apply(_, _ int, resultA Result) (int, int, error) {
	deltaA, err := resultA.points()
	if err != nil {
		return 0, 0, err
	}

	deltaB, err := resultA.Invert().points()
	if err != nil {
		return 0, 0, err
	}

	return deltaA, deltaB, nil
}

type Change struct {
	PlayerID string `json:"player_id"`
	Previous int    `json:"previous"`
	New      int    `json:"new"`
	Delta    int    `json:"delta"`
	Result   Result `json:"result"`
}

type Participant struct {
	PlayerID string
	Elo      int
}

// Changes computes both players' rating changes in participant order.
func Changes(a, b Participant, resultA Result) ([]Change, error) {
	deltaA, deltaB, err := Apply(a.Elo, b.Elo, resultA)
	if err != nil {
		return nil, err
	}

	return []Change{
		{PlayerID: a.PlayerID, Previous: a.Elo, New: a.Elo + deltaA, Delta: deltaA, Result: resultA},
		{PlayerID: b.PlayerID, Previous: b.Elo, New: b.Elo + deltaB, Delta: deltaB, Result: resultA.Invert()},
	}, nil
}
