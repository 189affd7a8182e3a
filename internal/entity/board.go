package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
)

const (
	BoardSize    = 16
	WinCondition = 5
)

var ErrMalformedBoard = errors.New("malformed board")

type Cell uint8

const (
	CellEmpty Cell = iota
	CellX
	CellO
)

// Mark is the symbol a seat plays. MarkX always moves first.
type Mark uint8

const (
	MarkNone Mark = iota
	MarkX
	MarkO
)

func (that Mark) Opponent() Mark {
	switch that {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	default:
		return MarkNone
	}
}

func (that Mark) Cell() Cell {
	return Cell(that)
}

func (that Mark) Valid() bool {
	return that == MarkX || that == MarkO
}

func (that Mark) String() string {
	switch that {
	case MarkX:
		return "X"
	case MarkO:
		return "O"
	default:
		return ""
	}
}

func (that Mark) MarshalText() ([]byte, error) {
	return []byte(that.String()), nil
}

func (that *Mark) UnmarshalText(text []byte) error {
	switch string(text) {
	case "X":
		*that = MarkX
	case "O":
		*that = MarkO
	case "":
		*that = MarkNone
	default:
		return fmt.Errorf("%w: %q", apperror.ErrInvalidMark, text)
	}

	return nil
}

func (that Cell) Mark() Mark {
	return Mark(that)
}

func (that Cell) symbol() byte {
	switch that {
	case CellX:
		return 'X'
	case CellO:
		return 'O'
	default:
		return '.'
	}
}

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (that Position) InBounds() bool {
	return that.Row >= 0 && that.Row < BoardSize && that.Col >= 0 && that.Col < BoardSize
}

func (that Position) step(dr, dc, n int) Position {
	return Position{Row: that.Row + dr*n, Col: that.Col + dc*n}
}

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
	DiagDown   Orientation = "diag_down"
	DiagUp     Orientation = "diag_up"
)

// orientations are scanned in this order; the first qualifying line wins.
var orientations = []struct {
	orientation Orientation
	dr, dc      int
}{
	{Horizontal, 0, 1},
	{Vertical, 1, 0},
	{DiagDown, 1, 1},
	{DiagUp, -1, 1},
}

type WinningLine struct {
	Start       Position    `json:"start"`
	End         Position    `json:"end"`
	Orientation Orientation `json:"orientation"`
	Mark        Mark        `json:"mark"`
	Length      int         `json:"length"`
}

// Board is a value type: Place returns a modified copy and never touches the receiver.
type Board struct {
	cells [BoardSize * BoardSize]Cell
	count int
}

func NewBoard() Board {
	return Board{}
}

func (that Board) At(pos Position) Cell {
	if !pos.InBounds() {
		return CellEmpty
	}

	return that.cells[pos.Row*BoardSize+pos.Col]
}

func (that Board) MoveCount() int {
	return that.count
}

func (that Board) IsFull() bool {
	return that.count == BoardSize*BoardSize
}

func (that Board) Place(pos Position, mark Mark) (Board, error) {
	if !mark.Valid() {
		return that, apperror.ErrInvalidMark
	}

	if !pos.InBounds() {
		return that, fmt.Errorf("%w: (%d,%d)", apperror.ErrOutOfBounds, pos.Row, pos.Col)
	}

	if that.At(pos) != CellEmpty {
		return that, fmt.Errorf("%w: (%d,%d)", apperror.ErrCellOccupied, pos.Row, pos.Col)
	}

	that.cells[pos.Row*BoardSize+pos.Col] = mark.Cell()
	that.count++

	return that, nil
}

// CheckWin looks for a line of at least WinCondition marks through last.
// A run of exactly WinCondition marks with the opponent on both ends is not a win;
// the board edge never counts as a block.
func (that Board) CheckWin(last Position) *WinningLine {
	cell := that.At(last)
	if cell == CellEmpty {
		return nil
	}

	opponent := cell.Mark().Opponent().Cell()

	for _, o := range orientations {
		back := that.run(last, -o.dr, -o.dc, cell)
		forward := that.run(last, o.dr, o.dc, cell)

		length := back + forward + 1
		if length < WinCondition {
			continue
		}

		start := last.step(-o.dr, -o.dc, back)
		end := last.step(o.dr, o.dc, forward)

		if length == WinCondition &&
			that.blockedBy(start.step(-o.dr, -o.dc, 1), opponent) &&
			that.blockedBy(end.step(o.dr, o.dc, 1), opponent) {
			continue
		}

		return &WinningLine{
			Start:       start,
			End:         end,
			Orientation: o.orientation,
			Mark:        cell.Mark(),
			Length:      length,
		}
	}

	return nil
}

// run counts contiguous cells equal to cell, starting next to from.
func (that Board) run(from Position, dr, dc int, cell Cell) int {
	n := 0
	for pos := from.step(dr, dc, 1); pos.InBounds() && that.At(pos) == cell; pos = pos.step(dr, dc, 1) {
		n++
	}

	return n
}

func (that Board) blockedBy(pos Position, opponent Cell) bool {
	return pos.InBounds() && that.At(pos) == opponent
}

// Rows renders the board as BoardSize strings using '.', 'X' and 'O'.
func (that Board) Rows() []string {
	rows := make([]string, BoardSize)

	var sb strings.Builder
	for row := range BoardSize {
		sb.Reset()
		for col := range BoardSize {
			sb.WriteByte(that.At(Position{Row: row, Col: col}).symbol())
		}
		rows[row] = sb.String()
	}

	return rows
}

func (that Board) String() string {
	return strings.Join(that.Rows(), "\n")
}

// ParseBoard is the inverse of Rows.
func ParseBoard(rows []string) (Board, error) {
	board := NewBoard()

	if len(rows) != BoardSize {
		return board, fmt.Errorf("%w: expected %d rows, got %d", ErrMalformedBoard, BoardSize, len(rows))
	}

	for row, line := range rows {
		if len(line) != BoardSize {
			return board, fmt.Errorf("%w: row %d has %d cells", ErrMalformedBoard, row, len(line))
		}

		for col := range BoardSize {
			var cell Cell
			switch line[col] {
			case '.':
				continue
			case 'X':
				cell = CellX
			case 'O':
				cell = CellO
			default:
				return board, fmt.Errorf("%w: unexpected %q at (%d,%d)", ErrMalformedBoard, line[col], row, col)
			}

			board.cells[row*BoardSize+col] = cell
			board.count++
		}
	}

	return board, nil
}

func (that Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(that.Rows())
}

func (that *Board) UnmarshalJSON(data []byte) error {
	var rows []string
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to unmarshal board: %w", err)
	}

	board, err := ParseBoard(rows)
	if err != nil {
		return err
	}

	*that = board

	return nil
}
