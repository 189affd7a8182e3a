package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
)

func placeAll(t *testing.T, board Board, mark Mark, positions ...Position) Board {
	t.Helper()

	for _, pos := range positions {
		next, err := board.Place(pos, mark)
		require.NoError(t, err)
		board = next
	}

	return board
}

func TestBoard_Place(t *testing.T) {
	t.Run("Places a mark on every empty in-bounds cell", func(t *testing.T) {
		// Given: an empty board
		board := NewBoard()

		for row := range BoardSize {
			for col := range BoardSize {
				pos := Position{Row: row, Col: col}

				// When: a mark is placed on the cell
				next, err := board.Place(pos, MarkX)

				// Then: the cell reads as the placed mark
				require.NoError(t, err)
				assert.Equal(t, CellX, next.At(pos))
				assert.Equal(t, 1, next.MoveCount())
			}
		}

		// And: the original board is untouched
		assert.Equal(t, 0, board.MoveCount())
	})

	t.Run("Rejects out of bounds positions without mutating the board", func(t *testing.T) {
		// Given: a board with one mark
		board := placeAll(t, NewBoard(), MarkX, Position{Row: 7, Col: 7})

		for _, pos := range []Position{{-1, 0}, {0, -1}, {BoardSize, 0}, {0, BoardSize}, {99, 99}} {
			// When: placing outside of the board
			next, err := board.Place(pos, MarkO)

			// Then: ErrOutOfBounds is returned and the board is unchanged
			require.ErrorIs(t, err, apperror.ErrOutOfBounds)
			assert.Equal(t, board, next)
		}
	})

	t.Run("Rejects occupied cells without mutating the board", func(t *testing.T) {
		// Given: a board where (3,4) is taken by X
		board := placeAll(t, NewBoard(), MarkX, Position{Row: 3, Col: 4})

		// When: O tries the same cell
		next, err := board.Place(Position{Row: 3, Col: 4}, MarkO)

		// Then: ErrCellOccupied is returned and the cell still reads X
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		assert.Equal(t, CellX, next.At(Position{Row: 3, Col: 4}))
		assert.Equal(t, 1, next.MoveCount())
	})

	t.Run("Rejects an empty mark", func(t *testing.T) {
		_, err := NewBoard().Place(Position{}, MarkNone)

		require.ErrorIs(t, err, apperror.ErrInvalidMark)
	})
}

func TestBoard_CheckWin(t *testing.T) {
	t.Run("Horizontal five from (7,7) to (7,11)", func(t *testing.T) {
		// Given: X at (7,7)..(7,11)
		board := placeAll(t, NewBoard(), MarkX,
			Position{7, 7}, Position{7, 8}, Position{7, 9}, Position{7, 10}, Position{7, 11})

		// When: checking the last placement
		line := board.CheckWin(Position{Row: 7, Col: 11})

		// Then: a horizontal line from (7,7) to (7,11) is found
		require.NotNil(t, line)
		assert.Equal(t, Horizontal, line.Orientation)
		assert.Equal(t, Position{7, 7}, line.Start)
		assert.Equal(t, Position{7, 11}, line.End)
		assert.Equal(t, MarkX, line.Mark)
		assert.Equal(t, 5, line.Length)
	})

	t.Run("Four in a row is not a win", func(t *testing.T) {
		board := placeAll(t, NewBoard(), MarkX, Position{7, 7}, Position{7, 8}, Position{7, 9}, Position{7, 10})

		assert.Nil(t, board.CheckWin(Position{7, 10}))
	})

	t.Run("Board edge does not block", func(t *testing.T) {
		// Given: X at (0,0)..(0,3) and O at (0,5)
		board := placeAll(t, NewBoard(), MarkX, Position{0, 0}, Position{0, 1}, Position{0, 2}, Position{0, 3})
		board = placeAll(t, board, MarkO, Position{0, 5})

		// When: X completes (0,4)
		board = placeAll(t, board, MarkX, Position{0, 4})
		line := board.CheckWin(Position{0, 4})

		// Then: the line counts, one end is the edge and the other an O
		require.NotNil(t, line)
		assert.Equal(t, Position{0, 0}, line.Start)
		assert.Equal(t, Position{0, 4}, line.End)
	})

	t.Run("Exactly five blocked on both ends is not a win", func(t *testing.T) {
		// Given: O,X,X,X,X,_,O on row 0
		board := placeAll(t, NewBoard(), MarkO, Position{0, 0}, Position{0, 6})
		board = placeAll(t, board, MarkX, Position{0, 1}, Position{0, 2}, Position{0, 3}, Position{0, 4})

		// When: X fills (0,5)
		board = placeAll(t, board, MarkX, Position{0, 5})

		// Then: no line is reported
		assert.Nil(t, board.CheckWin(Position{0, 5}))
	})

	t.Run("Five blocked on one end only is a win", func(t *testing.T) {
		board := placeAll(t, NewBoard(), MarkO, Position{4, 2})
		board = placeAll(t, board, MarkX, Position{4, 3}, Position{4, 4}, Position{4, 5}, Position{4, 6}, Position{4, 7})

		assert.NotNil(t, board.CheckWin(Position{4, 7}))
	})

	t.Run("Overline wins even when both ends are blocked", func(t *testing.T) {
		// Given: O, six X, O on row 2
		board := placeAll(t, NewBoard(), MarkO, Position{2, 0}, Position{2, 7})
		board = placeAll(t, board, MarkX,
			Position{2, 1}, Position{2, 2}, Position{2, 3}, Position{2, 5}, Position{2, 6}, Position{2, 4})

		// When: checking the joining move
		line := board.CheckWin(Position{2, 4})

		// Then: the six-long line wins
		require.NotNil(t, line)
		assert.Equal(t, 6, line.Length)
	})

	t.Run("Vertical line", func(t *testing.T) {
		board := placeAll(t, NewBoard(), MarkO, Position{11, 15}, Position{12, 15}, Position{13, 15}, Position{14, 15}, Position{15, 15})

		line := board.CheckWin(Position{13, 15})

		require.NotNil(t, line)
		assert.Equal(t, Vertical, line.Orientation)
		assert.Equal(t, Position{11, 15}, line.Start)
		assert.Equal(t, Position{15, 15}, line.End)
	})

	t.Run("Down diagonal line", func(t *testing.T) {
		board := placeAll(t, NewBoard(), MarkX, Position{1, 1}, Position{2, 2}, Position{3, 3}, Position{4, 4}, Position{5, 5})

		line := board.CheckWin(Position{3, 3})

		require.NotNil(t, line)
		assert.Equal(t, DiagDown, line.Orientation)
		assert.Equal(t, Position{1, 1}, line.Start)
		assert.Equal(t, Position{5, 5}, line.End)
	})

	t.Run("Up diagonal line", func(t *testing.T) {
		board := placeAll(t, NewBoard(), MarkX, Position{9, 0}, Position{8, 1}, Position{7, 2}, Position{6, 3}, Position{5, 4})

		line := board.CheckWin(Position{5, 4})

		require.NotNil(t, line)
		assert.Equal(t, DiagUp, line.Orientation)
		assert.Equal(t, Position{9, 0}, line.Start)
		assert.Equal(t, Position{5, 4}, line.End)
	})

	t.Run("Horizontal wins over vertical when both qualify", func(t *testing.T) {
		// Given: a cross through (7,7) completing both a row and a column
		board := placeAll(t, NewBoard(), MarkX,
			Position{7, 5}, Position{7, 6}, Position{7, 8}, Position{7, 9},
			Position{5, 7}, Position{6, 7}, Position{8, 7}, Position{9, 7},
			Position{7, 7})

		line := board.CheckWin(Position{7, 7})

		require.NotNil(t, line)
		assert.Equal(t, Horizontal, line.Orientation)
	})

	t.Run("Empty or out of bounds position has no line", func(t *testing.T) {
		assert.Nil(t, NewBoard().CheckWin(Position{0, 0}))
		assert.Nil(t, NewBoard().CheckWin(Position{-1, 3}))
	})
}

func TestBoard_IsFull(t *testing.T) {
	// Given: a board filled in a pattern with no five in a row
	board := NewBoard()
	for row := range BoardSize {
		for col := range BoardSize {
			mark := MarkX
			if (col/2+row)%2 == 1 {
				mark = MarkO
			}
			board = placeAll(t, board, mark, Position{row, col})
		}
	}

	// Then: it reports full only after the last cell
	assert.True(t, board.IsFull())
	assert.False(t, NewBoard().IsFull())
}

func TestReplay(t *testing.T) {
	t.Run("Replaying the move log reproduces the board", func(t *testing.T) {
		// Given: a sequence of alternating moves
		positions := []Position{{7, 7}, {8, 8}, {7, 8}, {6, 6}, {7, 9}, {0, 15}}
		board := NewBoard()
		moves := make([]Move, 0, len(positions))
		mark := MarkX
		for i, pos := range positions {
			board = placeAll(t, board, mark, pos)
			moves = append(moves, Move{Position: pos, Mark: mark, Seq: i + 1, At: time.Unix(int64(i), 0)})
			mark = mark.Opponent()
		}

		// When: replaying the log from an empty board
		replayed, err := Replay(moves)

		// Then: the boards are identical
		require.NoError(t, err)
		assert.Equal(t, board, replayed)
	})

	t.Run("Out of sequence log is rejected", func(t *testing.T) {
		_, err := Replay([]Move{{Position: Position{0, 0}, Mark: MarkX, Seq: 2}})

		require.ErrorIs(t, err, ErrMoveOutOfSequence)
	})

	t.Run("Board survives a JSON round trip", func(t *testing.T) {
		board := placeAll(t, NewBoard(), MarkX, Position{0, 0}, Position{15, 15})
		board = placeAll(t, board, MarkO, Position{7, 3})

		data, err := json.Marshal(board)
		require.NoError(t, err)

		var decoded Board
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, board, decoded)
	})
}
