package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blukai/fourparty/internal/debug"
	"github.com/blukai/fourparty/internal/protocol"
)

// row 0 is the top of the board, pieces settle towards row Rows-1.
const (
	Rows    = 6
	Columns = 7
	ToWin   = 4
)

var ErrIllegalMove = errors.New("board: illegal move")

type Cell uint8

const (
	Empty Cell = iota
	Red
	Yellow
)

func cellOf(c protocol.Color) Cell {
	if c == protocol.Red {
		return Red
	}
	return Yellow
}

// Board is a plain value, copying it takes a snapshot. queries use value
// receivers and never mutate, Drop is the only pointer method.
type Board struct {
	cells [Rows][Columns]Cell
}

// Drop places color in the lowest empty row of column and returns that row.
// it is the only way to mutate a board.
func (b *Board) Drop(column int, color protocol.Color) (int, error) {
	if column < 0 || column >= Columns {
		return -1, fmt.Errorf("%w: column %d out of range", ErrIllegalMove, column)
	}
	for row := Rows - 1; row >= 0; row-- {
		if b.cells[row][column] == Empty {
			b.cells[row][column] = cellOf(color)
			return row, nil
		}
	}
	return -1, fmt.Errorf("%w: column %d is full", ErrIllegalMove, column)
}

// IsLegal reports whether column exists and has room for another piece.
func (b Board) IsLegal(column int) bool {
	return column >= 0 && column < Columns && b.cells[0][column] == Empty
}

// LegalColumns lists the columns that can still take a piece.
func (b Board) LegalColumns() []int {
	columns := make([]int, 0, Columns)
	for column := 0; column < Columns; column++ {
		if b.IsLegal(column) {
			columns = append(columns, column)
		}
	}
	return columns
}

func (b Board) Cell(row, column int) Cell {
	debug.Assertf(row >= 0 && row < Rows && column >= 0 && column < Columns,
		"cell (%d, %d) out of range", row, column)
	return b.cells[row][column]
}

// direction of a run, scanned from its first cell.
type direction struct {
	dRow, dColumn int
}

// scan order matters only for which run gets reported, never for which color
// wins: horizontal, vertical, then the two diagonals.
var directions = [...]direction{
	{0, 1},  // left to right
	{1, 0},  // top to bottom
	{1, 1},  // down-right
	{1, -1}, // down-left
}

// Evaluate classifies the board. it only reads cells.
func (b Board) Evaluate() protocol.Result {
	for _, d := range directions {
		for row := 0; row < Rows; row++ {
			for column := 0; column < Columns; column++ {
				if cell := b.runFrom(row, column, d); cell != Empty {
					if cell == Red {
						return protocol.RedWin
					}
					return protocol.YellowWin
				}
			}
		}
	}

	for column := 0; column < Columns; column++ {
		if b.cells[0][column] == Empty {
			return protocol.InProgress
		}
	}
	return protocol.Draw
}

// runFrom returns the cell that forms ToWin in a row starting at (row,
// column) in direction d, or Empty.
func (b Board) runFrom(row, column int, d direction) Cell {
	endRow := row + d.dRow*(ToWin-1)
	endColumn := column + d.dColumn*(ToWin-1)
	if endRow < 0 || endRow >= Rows || endColumn < 0 || endColumn >= Columns {
		return Empty
	}

	cell := b.cells[row][column]
	if cell == Empty {
		return Empty
	}
	for i := 1; i < ToWin; i++ {
		if b.cells[row+d.dRow*i][column+d.dColumn*i] != cell {
			return Empty
		}
	}
	return cell
}

func (b Board) String() string {
	sb := strings.Builder{}
	sb.WriteString(" 0 1 2 3 4 5 6\n")
	for row := 0; row < Rows; row++ {
		for column := 0; column < Columns; column++ {
			sb.WriteByte(' ')
			switch b.cells[row][column] {
			case Red:
				sb.WriteByte('R')
			case Yellow:
				sb.WriteByte('Y')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
