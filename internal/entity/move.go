package entity

import (
	"errors"
	"fmt"
	"time"
)

var ErrMoveOutOfSequence = errors.New("move is out of sequence")

// Move is immutable once appended to a session's log. Seq starts at 1.
type Move struct {
	Position Position  `json:"position"`
	Mark     Mark      `json:"mark"`
	Seq      int       `json:"seq"`
	At       time.Time `json:"at"`
}

// Replay rebuilds a board from an empty one by applying moves in order.
func Replay(moves []Move) (Board, error) {
	board := NewBoard()

	for i, move := range moves {
		if move.Seq != i+1 {
			return board, fmt.Errorf("%w: expected seq %d, got %d", ErrMoveOutOfSequence, i+1, move.Seq)
		}

		next, err := board.Place(move.Position, move.Mark)
		if err != nil {
			return board, fmt.Errorf("failed to replay move %d: %w", move.Seq, err)
		}

		board = next
	}

	return board, nil
}
